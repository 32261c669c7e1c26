// capsunlocked - CapsLock navigation layer
//
// While CapsLock is held, keys are remapped through a keymap file:
//
//	capsunlocked run               Run the remapping daemon
//	capsunlocked check [keymap]    Parse and validate a keymap
//	capsunlocked list              Show the active mappings
//	capsunlocked resolve <key>     Resolve one key against the keymap
//	capsunlocked version           Print the version
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"capsunlocked/internal/config"
	"capsunlocked/internal/keys"
	"capsunlocked/internal/overlay"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		cmdRun()
	case "check":
		cmdCheck()
	case "list":
		cmdList()
	case "resolve":
		cmdResolve()
	case "version", "-v", "--version":
		fmt.Printf("capsunlocked %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`capsunlocked - CapsLock navigation layer

USAGE:
    capsunlocked <command> [options]

COMMANDS:
    run                 Run the remapping daemon
    check [keymap]      Parse and validate a keymap file
    list                Show the active mappings
    resolve <key>       Show what a key does while CapsLock is held
    version             Print version information
    help                Show this help message

COMMON OPTIONS:
    -config <file>      Settings file (default: capsunlocked.toml in the
                        working directory or the config directory)
    -keymap <file>      Keymap file, overriding the settings

RUN OPTIONS:
    -dry-run            Print actions instead of injecting them
    -device <path>      Read one /dev/input/event* node
    -no-grab            Do not take keyboards exclusively

SIGNALS:
    SIGHUP              Reload the keymap
    SIGINT, SIGTERM     Release held keys and exit

KEYMAP SYNTAX:
    [modifiers]
    S
    D

    [maps]
    [*] [J] [LEFT]
    [*] [S J] [SHIFT! LEFT]
    [code] [D] [J] [CTRL+LEFT]

PRIVACY NOTE:
    Key names are logged only at debug level. Nothing that was typed is
    ever written to disk.`)
}

// commonFlags are accepted by every command that reads a keymap.
type commonFlags struct {
	config string
	keymap string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "Settings file")
	fs.StringVar(&c.keymap, "keymap", "", "Keymap file")
}

// settings loads the settings file and applies the -keymap override.
func (c *commonFlags) settings() (*config.Settings, error) {
	path := c.config
	if path == "" {
		path = config.FindSettingsFile()
	}
	s, err := config.LoadSettings(path)
	if err != nil {
		return nil, err
	}
	if c.keymap != "" {
		s.Keymap.Path = c.keymap
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *commonFlags) loadKeymap() (*config.Keymap, error) {
	s, err := c.settings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return config.LoadKeymap(s.Keymap.Path, runtime.GOOS, s.Keymap.Validate)
}

func cmdCheck() {
	var common commonFlags
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	common.register(fs)
	fs.Parse(os.Args[2:])

	if fs.NArg() > 0 {
		common.keymap = fs.Arg(0)
	}

	km, err := common.loadKeymap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	writeCheck(os.Stdout, km)
}

func writeCheck(w io.Writer, km *config.Keymap) {
	fmt.Fprintln(w, km.Describe())
	fmt.Fprintln(w)
	switch {
	case km.Defaults && km.Path != "":
		fmt.Fprintf(w, "%s has no mappings; using built-in defaults\n", km.Path)
	case km.Defaults:
		fmt.Fprintln(w, "Using built-in defaults")
	default:
		fmt.Fprintf(w, "%s: OK\n", km.Path)
	}
}

func cmdList() {
	var common commonFlags
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	common.register(fs)
	app := fs.String("app", "", "Show rows that apply to this application")
	asJSON := fs.Bool("json", false, "Output as JSON")
	fs.Parse(os.Args[2:])

	km, err := common.loadKeymap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := writeList(os.Stdout, km, *app, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func writeList(w io.Writer, km *config.Keymap, app string, asJSON bool) error {
	model := overlay.New()
	model.Bind(km.Index().Enumerate())
	entries := model.Entries(app)

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, overlay.FormatEntry(e)); err != nil {
			return err
		}
	}
	return nil
}

func cmdResolve() {
	var common commonFlags
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	common.register(fs)
	app := fs.String("app", "", "Focused application")
	mods := fs.String("mods", "", "Held layer modifiers, e.g. S+D")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: capsunlocked resolve [-app name] [-mods A+S] <key>")
		os.Exit(1)
	}

	km, err := common.loadKeymap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := writeResolve(os.Stdout, km, fs.Arg(0), *app, *mods); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func writeResolve(w io.Writer, km *config.Keymap, key, app, mods string) error {
	key, err := keys.NormalizeKey(key)
	if err != nil {
		return err
	}
	idx := km.Index()
	if idx.IsModifier(key) {
		fmt.Fprintf(w, "%s is a layer modifier\n", key)
		return nil
	}

	var held []string
	if mods != "" {
		held = keys.SplitModifierToken(mods)
	}
	res, ok := idx.Resolve(key, app, held)
	if !ok {
		return fmt.Errorf("%s has no mapping (held: %s)", key, keys.NormalizeModifierSet(held))
	}

	fmt.Fprintf(w, "%s -> %s\n", key, res.Action)
	fmt.Fprintf(w, "  app:  %s\n", res.App)
	if len(res.Mods) > 0 {
		fmt.Fprintf(w, "  mods: %s\n", strings.Join(res.Mods, "+"))
	}
	return nil
}

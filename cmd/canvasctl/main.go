package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MJE43/rps-canvas/internal/canvas"
	"github.com/MJE43/rps-canvas/internal/credentials"
	"github.com/MJE43/rps-canvas/internal/engine"
	"github.com/MJE43/rps-canvas/internal/games"
	"github.com/MJE43/rps-canvas/internal/manifest"
)

const usage = `usage: canvasctl <command> [flags]

commands:
  manifest  print the app manifest YAML
  render    print the canvas blocks the service would send
  verify    replay a seeded counter-move draw
  token     store or delete the Benchling API token in the OS keyring
`

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "canvasctl: %v\n", err)
		}
		os.Exit(2)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}
	switch args[0] {
	case "manifest":
		return runManifest(args[1:], stdout, stderr)
	case "render":
		return runRender(args[1:], stdout, stderr)
	case "verify":
		return runVerify(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdin, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return errUsage
	}
}

func runManifest(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	webhookURL := fs.String("webhook-url", "", "public webhook URL to include")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m := manifest.Default(*webhookURL)
	if err := m.Validate(); err != nil {
		return err
	}
	raw, err := m.Encode()
	if err != nil {
		return err
	}
	_, err = stdout.Write(raw)
	return err
}

func runRender(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	button := fs.String("button", "", "button id to resolve (btn_rock, btn_paper, btn_scissors); empty renders the initial canvas")
	serverSeed := fs.String("server-seed", "", "server seed for a reproducible draw")
	clientSeed := fs.String("client-seed", "", "client seed for a reproducible draw")
	nonce := fs.Uint64("nonce", 0, "nonce for a reproducible draw")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var state canvas.State = canvas.Initial{}
	if *button != "" {
		choice, ok := canvas.ChoiceForTrigger(*button)
		if !ok {
			return fmt.Errorf("unknown button %q", *button)
		}
		src, err := sourceFor(*serverSeed, *clientSeed, *nonce)
		if err != nil {
			return err
		}
		state = canvas.Resolved{Result: games.Resolve(choice, src)}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(canvas.Render(state))
}

func sourceFor(serverSeed, clientSeed string, nonce uint64) (engine.Source, error) {
	if serverSeed == "" && clientSeed == "" {
		return engine.CryptoSource{}, nil
	}
	if serverSeed == "" || clientSeed == "" {
		return nil, errors.New("-server-seed and -client-seed must be set together")
	}
	return engine.NewSeededSource(serverSeed, clientSeed, nonce), nil
}

type verifyOutput struct {
	ServerSeedHash string       `json:"server_seed_hash"`
	ClientSeed     string       `json:"client_seed"`
	Nonce          uint64       `json:"nonce"`
	Float          float64      `json:"float"`
	Result         games.Result `json:"result"`
}

func runVerify(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	serverSeed := fs.String("server-seed", "", "revealed server seed")
	clientSeed := fs.String("client-seed", "", "client seed")
	nonce := fs.Uint64("nonce", 0, "nonce of the draw")
	button := fs.String("button", "", "button the user pressed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *serverSeed == "" || *clientSeed == "" {
		return errors.New("-server-seed and -client-seed are required")
	}
	choice, ok := canvas.ChoiceForTrigger(*button)
	if !ok {
		return fmt.Errorf("unknown button %q", *button)
	}

	src := engine.NewSeededSource(*serverSeed, *clientSeed, *nonce)
	f := engine.Floats(*serverSeed, *clientSeed, *nonce, 0, 1)[0]
	out := verifyOutput{
		ServerSeedHash: src.ServerSeedHash(),
		ClientSeed:     *clientSeed,
		Nonce:          *nonce,
		Float:          f,
		Result:         games.Resolve(choice, engine.FixedSource(f)),
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runToken(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, "usage: canvasctl token set|delete -account <host> [-service name] [-fallback path]\n")
		return errUsage
	}
	action := args[0]

	fs := flag.NewFlagSet("token "+action, flag.ContinueOnError)
	fs.SetOutput(stderr)
	account := fs.String("account", "", "keyring account, normally the Benchling tenant host")
	service := fs.String("service", envOr("KEYRING_SERVICE", credentials.DefaultService), "keyring service name")
	fallback := fs.String("fallback", os.Getenv("KEYRING_FALLBACK_PATH"), "JSON file used when no keyring is available")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if strings.TrimSpace(*account) == "" {
		return errors.New("-account is required")
	}
	store := credentials.NewStore(*service, *fallback)

	switch action {
	case "set":
		token, err := readToken(stdin)
		if err != nil {
			return err
		}
		if err := store.Set(*account, token); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "token stored for %s\n", *account)
		return nil
	case "delete":
		if err := store.Delete(*account); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "token deleted for %s\n", *account)
		return nil
	default:
		return fmt.Errorf("unknown token action %q", action)
	}
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", errors.New("no token on stdin")
	}
	return token, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

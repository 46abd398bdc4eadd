package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"tokensale/cmd/internal/secret"
	"tokensale/crypto"
	"tokensale/rpc/middleware"
)

const (
	keystoreEnv     = "SALE_KEYSTORE"
	keystorePassEnv = "SALE_KEYSTORE_PASS"
	jwtSecretEnv    = "SALE_RPC_JWT_SECRET"
	jwtIssuerEnv    = "SALE_RPC_JWT_ISSUER"
	defaultTokenTTL = 5 * time.Minute
)

var rpcEndpoint = defaultRPCEndpoint()

var (
	keystorePath = strings.TrimSpace(os.Getenv(keystoreEnv))
	keystorePass = secret.NewSource(keystorePassEnv, "keystore passphrase", true)
	jwtSecret    = secret.NewSource(jwtSecretEnv, "RPC JWT secret", false)
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if len(args) < 1 {
		printUsage(stdout)
		return 2
	}
	if err := dispatch(args[0], args[1:], stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func dispatch(command string, args []string, out io.Writer) error {
	switch command {
	case "generate-key":
		if len(args) != 1 {
			return fmt.Errorf("usage: generate-key <keystore-path>")
		}
		return generateKey(args[0], out)
	case "address":
		key, err := loadKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, key.PubKey().Address().String())
		return nil
	case "token":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: token <subject> [ttl-seconds]")
		}
		ttl := defaultTokenTTL
		if len(args) == 2 {
			seconds, err := strconv.Atoi(args[1])
			if err != nil || seconds <= 0 {
				return fmt.Errorf("invalid ttl %q", args[1])
			}
			ttl = time.Duration(seconds) * time.Second
		}
		signed, err := mintToken(args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, signed)
		return nil
	case "status":
		return query(out, "sale_status", nil)
	case "rate":
		if len(args) == 1 {
			return query(out, "sale_rate", map[string]string{"address": args[0]})
		}
		return query(out, "sale_rate", nil)
	case "balance":
		if len(args) != 1 {
			return fmt.Errorf("usage: balance <address>")
		}
		return query(out, "token_balanceOf", map[string]string{"address": args[0]})
	case "whitelisted":
		if len(args) != 1 {
			return fmt.Errorf("usage: whitelisted <address>")
		}
		return query(out, "sale_isWhitelisted", map[string]string{"address": args[0]})
	case "events":
		offset := 0
		if len(args) == 1 {
			parsed, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid offset %q", args[0])
			}
			offset = parsed
		}
		return query(out, "sale_events", map[string]int{"offset": offset})
	case "buy":
		if len(args) != 2 {
			return fmt.Errorf("usage: buy <beneficiary> <value>")
		}
		return act(out, "sale_buyTokens", map[string]string{"beneficiary": args[0], "value": args[1]})
	case "contribute":
		if len(args) != 1 {
			return fmt.Errorf("usage: contribute <value>")
		}
		return act(out, "sale_contribute", map[string]string{"value": args[0]})
	case "finalize":
		return act(out, "sale_finalize", map[string]string{})
	case "begin-continuous":
		return act(out, "sale_beginContinuousSale", map[string]string{})
	case "set-rate":
		if len(args) != 1 {
			return fmt.Errorf("usage: set-rate <rate>")
		}
		return act(out, "sale_setRate", map[string]string{"rate": args[0]})
	case "set-wallet":
		if len(args) != 1 {
			return fmt.Errorf("usage: set-wallet <address>")
		}
		return act(out, "sale_setWallet", map[string]string{"address": args[0]})
	case "whitelist":
		if len(args) != 1 {
			return fmt.Errorf("usage: whitelist <address>")
		}
		return act(out, "sale_addToWhitelist", map[string]string{"address": args[0]})
	case "buyer-rate":
		if len(args) != 2 {
			return fmt.Errorf("usage: buyer-rate <address> <rate>")
		}
		return act(out, "sale_setBuyerRate", map[string]string{"address": args[0], "rate": args[1]})
	case "pause":
		return act(out, "sale_pauseToken", map[string]string{})
	case "unpause":
		return act(out, "sale_unpauseToken", map[string]string{})
	case "transfer-ownership":
		if len(args) != 1 {
			return fmt.Errorf("usage: transfer-ownership <address>")
		}
		return act(out, "sale_transferOwnership", map[string]string{"address": args[0]})
	case "transfer":
		if len(args) != 2 {
			return fmt.Errorf("usage: transfer <to> <amount>")
		}
		return act(out, "token_transfer", map[string]string{"to": args[0], "amount": args[1]})
	case "burn":
		if len(args) != 1 {
			return fmt.Errorf("usage: burn <amount>")
		}
		return act(out, "token_burn", map[string]string{"amount": args[0]})
	default:
		printUsage(out)
		return fmt.Errorf("unknown command %q", command)
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8545"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--keystore":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--rpc" {
				rpcEndpoint = args[i+1]
			} else {
				keystorePath = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
		case strings.HasPrefix(arg, "--keystore="):
			keystorePath = strings.TrimPrefix(arg, "--keystore=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func generateKey(path string, out io.Writer) error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	pass, err := keystorePass.Get()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		return fmt.Errorf("save keystore: %w", err)
	}
	fmt.Fprintf(out, "Saved key for %s to %s\n", key.PubKey().Address().String(), path)
	return nil
}

func loadKey() (*crypto.PrivateKey, error) {
	if keystorePath == "" {
		return nil, fmt.Errorf("keystore required; pass --keystore or set %s", keystoreEnv)
	}
	pass, err := keystorePass.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(keystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", keystorePath, err)
	}
	return key, nil
}

func mintToken(subject string, ttl time.Duration) (string, error) {
	signingKey, err := jwtSecret.Get()
	if err != nil {
		return "", err
	}
	issuer := strings.TrimSpace(os.Getenv(jwtIssuerEnv))
	if issuer == "" {
		issuer = "sale-cli"
	}
	return middleware.IssueToken(signingKey, issuer, subject, ttl, time.Now())
}

func query(out io.Writer, method string, param interface{}) error {
	result, err := callRPC(method, param, "")
	if err != nil {
		return err
	}
	printJSONResult(out, result)
	return nil
}

// act signs a token for the keystore account and sends method with the
// account as caller.
func act(out io.Writer, method string, param map[string]string) error {
	key, err := loadKey()
	if err != nil {
		return err
	}
	caller := key.PubKey().Address().String()
	signed, err := mintToken(caller, defaultTokenTTL)
	if err != nil {
		return err
	}
	param["caller"] = caller
	result, err := callRPC(method, param, signed)
	if err != nil {
		return err
	}
	printJSONResult(out, result)
	return nil
}

func callRPC(method string, param interface{}, bearer string) (json.RawMessage, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node (HTTP %d)", resp.StatusCode)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("error from node (%d): %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func printJSONResult(out io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(out, "No result.")
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		fmt.Fprintln(out, string(result))
		return
	}
	fmt.Fprintln(out, buf.String())
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `Usage: sale-cli [--rpc URL] [--keystore PATH] <command> [args]

Keys and tokens:
  generate-key <path>            create an encrypted keystore
  address                        print the keystore address
  token <subject> [ttl-seconds]  mint an RPC bearer token

Queries:
  status | rate [address] | balance <address> | whitelisted <address> | events [offset]

Signed calls (caller = keystore address):
  buy <beneficiary> <value>      contribute <value>
  finalize                       begin-continuous
  set-rate <rate>                set-wallet <address>
  whitelist <address>            buyer-rate <address> <rate>
  pause | unpause                transfer-ownership <address>
  transfer <to> <amount>         burn <amount>`)
}

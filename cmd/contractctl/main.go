// Command contractctl is a CLI client for the econtract gRPC API.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/econtract/internal/rpc"
)

// ---- token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	Subject     string    `json:"subject"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "contractctl")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "contractctl")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok, sub string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, Subject: sub, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", fmt.Errorf("no saved token (run contractctl token): %w", err)
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("token expired (run contractctl token)")
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // dev only
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// conn holds connection settings shared by all commands.
type conn struct {
	addr       string
	caPath     string
	skipVerify bool
	plaintext  bool
	timeout    time.Duration
	token      string // overrides the saved token
	extra      []grpc.DialOption
}

func (c *conn) dial() (*grpc.ClientConn, *rpc.ContractServiceClient, error) {
	tok := c.token
	if tok == "" {
		var err error
		if tok, err = loadToken(); err != nil {
			return nil, nil, err
		}
	}
	var opts []grpc.DialOption
	if c.plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		creds, err := loadTLS(c.caPath, c.skipVerify)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	}
	opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: tok, secure: !c.plaintext}))
	opts = append(opts, c.extra...)

	cc, err := grpc.NewClient(c.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, rpc.NewContractServiceClient(cc), nil
}

// ---- utils ----

func readAll(in io.Reader, p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(in)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// friendly converts gRPC status errors to "code: message".
func friendly(err error) error {
	if st, ok := status.FromError(err); ok {
		return fmt.Errorf("%s: %s", st.Code(), st.Message())
	}
	return err
}

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(&conn{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", friendly(err))
		os.Exit(1)
	}
}

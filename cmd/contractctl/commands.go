package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/and161185/econtract/internal/auth"
	"github.com/and161185/econtract/internal/config"
	"github.com/and161185/econtract/internal/convert"
	"github.com/and161185/econtract/internal/model"
	"github.com/and161185/econtract/internal/rpc"
)

func newRootCmd(c *conn) *cobra.Command {
	root := &cobra.Command{
		Use:           "contractctl",
		Short:         "Manage electronic contracts over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.addr, "addr", "localhost:8443", "server address")
	pf.StringVar(&c.caPath, "cacert", "", "CA certificate (PEM)")
	pf.BoolVar(&c.skipVerify, "insecure", false, "skip TLS certificate verification (dev)")
	pf.BoolVar(&c.plaintext, "plaintext", false, "connect without TLS")
	pf.DurationVar(&c.timeout, "timeout", 30*time.Second, "per-command timeout")
	pf.StringVar(&c.token, "token", "", "bearer token (default: saved token)")

	root.AddCommand(
		versionCmd(),
		tokenCmd(),
		createCmd(c),
		getCmd(c),
		listCmd(c),
		signCmd(c),
		statusCmd(c),
		addPartyCmd(c),
	)
	return root
}

// call dials the server and runs fn with a bounded context.
func (c *conn) call(cmd *cobra.Command, fn func(ctx context.Context, cl *rpc.ContractServiceClient) error) error {
	cc, cl, err := c.dial()
	if err != nil {
		return err
	}
	defer cc.Close()
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()
	return fn(ctx, cl)
}

func printContract(cmd *cobra.Command, s *structpb.Struct) error {
	out, err := convert.FromProtoContract(s)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "contractctl %s (%s)\n", version, buildDate)
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		sub  string
		key  string
		ttl  time.Duration
		save bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token signed with the server key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				key = os.Getenv(config.EnvJWTKey)
			}
			if key == "" {
				return fmt.Errorf("need --key or %s", config.EnvJWTKey)
			}
			now := time.Now()
			tok, err := auth.Issue([]byte(key), sub, ttl, now)
			if err != nil {
				return err
			}
			if save {
				if err := saveToken(tok, sub, now.Add(ttl)); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "acting user id")
	cmd.Flags().StringVar(&key, "key", "", "HS256 key (default $"+config.EnvJWTKey+")")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&save, "save", true, "store the token for later commands")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func createCmd(c *conn) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create -f record.json",
		Short: "Create a contract from a JSON record ('-' reads stdin)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readAll(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			var rec model.Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("parse record: %w", err)
			}
			req, err := convert.Encode(rec)
			if err != nil {
				return err
			}
			return c.call(cmd, func(ctx context.Context, cl *rpc.ContractServiceClient) error {
				out, err := cl.CreateContract(ctx, req)
				if err != nil {
					return err
				}
				return printContract(cmd, out)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "record file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func getCmd(c *conn) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, cl *rpc.ContractServiceClient) error {
				out, err := cl.GetContract(ctx, wrapperspb.String(args[0]))
				if err != nil {
					return err
				}
				return printContract(cmd, out)
			})
		},
	}
}

// listRow is the compact list view.
type listRow struct {
	ID          string `json:"id"`
	Number      string `json:"contractNumber"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	FullySigned bool   `json:"fullySigned"`
}

func listCmd(c *conn) *cobra.Command {
	var m convert.ListMessage
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := convert.Encode(m)
			if err != nil {
				return err
			}
			return c.call(cmd, func(ctx context.Context, cl *rpc.ContractServiceClient) error {
				out, err := cl.ListContracts(ctx, req)
				if err != nil {
					return err
				}
				list, err := convert.FromProtoContracts(out)
				if err != nil {
					return err
				}
				rows := make([]listRow, 0, len(list))
				for _, ct := range list {
					rows = append(rows, listRow{
						ID:          ct.ID,
						Number:      ct.ContractNumber,
						Title:       ct.Title,
						Status:      string(ct.Status),
						FullySigned: ct.FullySigned,
					})
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
	cmd.Flags().StringVar(&m.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&m.Type, "type", "", "filter by type")
	cmd.Flags().IntVar(&m.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&m.Offset, "offset", 0, "page offset")
	return cmd
}

func signCmd(c *conn) *cobra.Command {
	var (
		m         convert.SignMessage
		imageFile string
	)
	cmd := &cobra.Command{
		Use:   "sign <id> --party <partyId>",
		Short: "Sign a contract as one of its parties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m.ID = args[0]
			if imageFile != "" {
				raw, err := readAll(cmd.InOrStdin(), imageFile)
				if err != nil {
					return err
				}
				m.SignatureImage = string(raw)
			}
			req, err := convert.Encode(m)
			if err != nil {
				return err
			}
			return c.call(cmd, func(ctx context.Context, cl *rpc.ContractServiceClient) error {
				out, err := cl.SignContract(ctx, req)
				if err != nil {
					return err
				}
				return printContract(cmd, out)
			})
		},
	}
	cmd.Flags().StringVar(&m.PartyID, "party", "", "party id")
	cmd.Flags().StringVar(&m.SignatureData, "data", "", "signature payload")
	cmd.Flags().StringVar(&imageFile, "image", "", "file with the signature image (URL or data URI)")
	cmd.Flags().StringVar(&m.DeviceInfo, "device", "contractctl", "device description")
	_ = cmd.MarkFlagRequired("party")
	return cmd
}

func statusCmd(c *conn) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change the lifecycle status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := model.ParseStatus(args[1]); err != nil {
				return err
			}
			req, err := convert.Encode(convert.StatusMessage{ID: args[0], Status: args[1]})
			if err != nil {
				return err
			}
			return c.call(cmd, func(ctx context.Context, cl *rpc.ContractServiceClient) error {
				out, err := cl.UpdateStatus(ctx, req)
				if err != nil {
					return err
				}
				return printContract(cmd, out)
			})
		},
	}
}

func addPartyCmd(c *conn) *cobra.Command {
	var (
		file         string
		party        model.Party
		nonSignatory bool
	)
	cmd := &cobra.Command{
		Use:   "add-party <id>",
		Short: "Add a party from flags or a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				raw, err := readAll(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &party); err != nil {
					return fmt.Errorf("parse party: %w", err)
				}
			} else {
				if party.Name == "" {
					return errors.New("need --name or -f")
				}
				party.IsSignatory = !nonSignatory
			}
			req, err := convert.Encode(convert.PartyMessage{ID: args[0], Party: party})
			if err != nil {
				return err
			}
			return c.call(cmd, func(ctx context.Context, cl *rpc.ContractServiceClient) error {
				out, err := cl.AddParty(ctx, req)
				if err != nil {
					return err
				}
				return printContract(cmd, out)
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "party JSON file")
	f.StringVar(&party.ID, "party-id", "", "party id (generated when empty)")
	f.StringVar(&party.UserID, "user", "", "owning user id")
	f.StringVar(&party.Name, "name", "", "display name")
	f.StringVar(&party.Role, "role", "", "role, e.g. tenant")
	f.StringVar(&party.Phone, "phone", "", "phone")
	f.StringVar(&party.Email, "email", "", "email")
	f.BoolVar(&party.IsPrimary, "primary", false, "primary party")
	f.BoolVar(&nonSignatory, "no-sign", false, "party does not need to sign")
	return cmd
}

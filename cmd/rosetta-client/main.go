// Package main provides a scriptable CLI harness for the Rosetta client
// library, used for integration testing rather than as an interactive chat
// shell.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tectonicboy/rosetta/internal/config"
	"github.com/tectonicboy/rosetta/internal/group"
	"github.com/tectonicboy/rosetta/internal/keystore"
	"github.com/tectonicboy/rosetta/internal/logging"
	"github.com/tectonicboy/rosetta/internal/rosettaclient"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "rosetta-client",
		Short:   "Rosetta end-to-end-encrypted group chat client",
		Version: Version,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddGroup(&cobra.Group{ID: "identity", Title: "Identity:"})
	rootCmd.AddGroup(&cobra.Group{ID: "session", Title: "Session Operations:"})

	register := registerCmd(&configPath)
	register.GroupID = "identity"
	rootCmd.AddCommand(register)

	for _, c := range []*cobra.Command{
		loginCmd(&configPath),
		createRoomCmd(&configPath),
		joinRoomCmd(&configPath),
		sendCmd(&configPath),
		pollCmd(&configPath),
		leaveCmd(&configPath),
		logoffCmd(&configPath),
	} {
		c.GroupID = "session"
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file if one is given, else falls back to
// config.Default().
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// dial loads group parameters, the caller's save file, the server's
// long-term pubkey, and opens a logged-in Client against cfg.Client.
func dial(ctx context.Context, cfg *config.Config, password []byte) (*rosettaclient.Client, error) {
	params, err := group.LoadParams(cfg.Client.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load group parameters: %w", err)
	}

	identity, err := keystore.Load(password, filepath.Join(cfg.Client.DataDir, "save.dat"))
	if err != nil {
		return nil, fmt.Errorf("load save file: %w", err)
	}

	serverPubBytes, err := os.ReadFile(filepath.Join(cfg.Client.DataDir, "server_pubkey.dat"))
	if err != nil {
		return nil, fmt.Errorf("load server pubkey: %w", err)
	}
	serverPub := new(big.Int).SetBytes(serverPubBytes)

	conn, err := net.Dial("tcp", cfg.Client.ServerAddress)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Client.ServerAddress, err)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	c := rosettaclient.New(params, identity, serverPub, conn, log)

	loginCtx, cancel := context.WithTimeout(ctx, cfg.Client.JoinTimeout)
	defer cancel()
	if err := c.Login(loginCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	return c, nil
}

func readPassword(flagValue string) []byte {
	if flagValue != "" {
		return []byte(flagValue)
	}
	line, _ := readStdinLine()
	return []byte(line)
}

func readStdinLine() (string, error) {
	var buf [256]byte
	n, err := os.Stdin.Read(buf[:])
	if err != nil && n == 0 {
		return "", err
	}
	for n > 0 && (buf[n-1] == '\n' || buf[n-1] == '\r') {
		n--
	}
	return string(buf[:n]), nil
}

func registerCmd(configPath *string) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Generate a long-term keypair and write an encrypted save file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			params, err := group.LoadParams(cfg.Client.DataDir)
			if err != nil {
				return fmt.Errorf("load group parameters: %w", err)
			}
			pw := readPassword(password)
			identity, err := rosettaclient.Register(params, pw, filepath.Join(cfg.Client.DataDir, "save.dat"))
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Printf("registered; pubkey=%s\n", hex.EncodeToString(identity.Pub.Bytes()))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Save file password (read from stdin if omitted)")
	return cmd
}

func loginCmd(configPath *string) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Run the login handshake and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			c, err := dial(ctx, cfg, readPassword(password))
			if err != nil {
				return err
			}
			defer c.Close()
			fmt.Println("login ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Save file password (read from stdin if omitted)")
	return cmd
}

func createRoomCmd(configPath *string) *cobra.Command {
	var password string
	var roomID string

	cmd := &cobra.Command{
		Use:   "create-room",
		Short: "Create a room under the given room id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			c, err := dial(ctx, cfg, readPassword(password))
			if err != nil {
				return err
			}
			defer c.Close()

			id, err := parseRoomID(roomID)
			if err != nil {
				return err
			}
			createCtx, cancel := context.WithTimeout(ctx, cfg.Client.JoinTimeout)
			defer cancel()
			if err := c.CreateRoom(createCtx, id); err != nil {
				return fmt.Errorf("create room: %w", err)
			}
			fmt.Printf("room %s created\n", roomID)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Save file password (read from stdin if omitted)")
	cmd.Flags().StringVar(&roomID, "room-id", "", "Hex-encoded room identifier, shared out of band")
	cmd.MarkFlagRequired("room-id")
	return cmd
}

func joinRoomCmd(configPath *string) *cobra.Command {
	var password string
	var roomID string

	cmd := &cobra.Command{
		Use:   "join-room",
		Short: "Join a room previously created by another client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			c, err := dial(ctx, cfg, readPassword(password))
			if err != nil {
				return err
			}
			defer c.Close()

			id, err := parseRoomID(roomID)
			if err != nil {
				return err
			}
			joinCtx, cancel := context.WithTimeout(ctx, cfg.Client.JoinTimeout)
			defer cancel()
			if err := c.JoinRoom(joinCtx, id); err != nil {
				return fmt.Errorf("join room: %w", err)
			}
			fmt.Printf("joined room %s\n", roomID)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Save file password (read from stdin if omitted)")
	cmd.Flags().StringVar(&roomID, "room-id", "", "Hex-encoded room identifier")
	cmd.MarkFlagRequired("room-id")
	return cmd
}

func sendCmd(configPath *string) *cobra.Command {
	var password string
	var text string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a text message to every current roommate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			c, err := dial(ctx, cfg, readPassword(password))
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.SendText([]byte(text)); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Printf("sent %s\n", humanize.Bytes(uint64(len(text))))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Save file password (read from stdin if omitted)")
	cmd.Flags().StringVar(&text, "text", "", "Message text")
	cmd.MarkFlagRequired("text")
	return cmd
}

func pollCmd(configPath *string) *cobra.Command {
	var password string
	var timeoutStr string

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll once for a pending envelope",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			c, err := dial(ctx, cfg, readPassword(password))
			if err != nil {
				return err
			}
			defer c.Close()

			timeout := cfg.Client.PollTimeout
			if timeoutStr != "" {
				d, err := time.ParseDuration(timeoutStr)
				if err != nil {
					return fmt.Errorf("parse --timeout: %w", err)
				}
				timeout = d
			}
			pollCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			msg, err := c.Poll(pollCtx)
			if err != nil {
				return fmt.Errorf("poll: %w", err)
			}
			if msg == nil {
				fmt.Println("nothing pending")
				return nil
			}
			fmt.Printf("from=%d text=%s\n", msg.SenderID, string(msg.Text))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Save file password (read from stdin if omitted)")
	cmd.Flags().StringVar(&timeoutStr, "timeout", "", "Poll round-trip timeout (default from config)")
	return cmd
}

func leaveCmd(configPath *string) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "leave",
		Short: "Leave the current room without logging off",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			c, err := dial(context.Background(), cfg, readPassword(password))
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.GuestLeave(); err != nil {
				return fmt.Errorf("leave: %w", err)
			}
			fmt.Println("left room")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Save file password (read from stdin if omitted)")
	return cmd
}

func logoffCmd(configPath *string) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "logoff",
		Short: "Log off entirely, freeing the server-side client slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			c, err := dial(context.Background(), cfg, readPassword(password))
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Logoff(); err != nil {
				return fmt.Errorf("logoff: %w", err)
			}
			fmt.Println("logged off")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Save file password (read from stdin if omitted)")
	return cmd
}

func parseRoomID(s string) (uint64, error) {
	s = trimHexPrefix(s)
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse room id %q: %w", s, err)
	}
	return v, nil
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

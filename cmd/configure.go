package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jfmyers9/firstscrobbles/internal/config"
	"github.com/jfmyers9/firstscrobbles/pkg/lastfm"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set the Last.fm API key and default username",
	Long: `Set the Last.fm API key and default username.

You'll be prompted for:
1. Your Last.fm API key (read-only access is enough, no secret needed)
2. A default username to fetch when none is given

The key is checked against Last.fm before it is saved to
~/.config/firstscrobbles/config.yaml.

You can get an API key from: https://www.last.fm/api/account/create`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := promptConfig(cmd.InOrStdin(), out, cfg); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nChecking API key...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := checkAPIKey(ctx, cfg); err != nil {
		return err
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(out, "\n✓ API key verified\n")
	fmt.Fprintf(out, "✓ Configuration saved to %s/config.yaml\n", config.GetConfigDir())
	fmt.Fprintln(out, "\nYou can now run 'firstscrobbles fetch'.")

	return nil
}

// promptConfig fills in the API key and default username from in.
// Existing values are offered as defaults.
func promptConfig(in io.Reader, out io.Writer, cfg *config.Config) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "Last.fm Configuration")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "You can get an API key from: https://www.last.fm/api/account/create")
	fmt.Fprintln(out)

	key, err := prompt(reader, out, "Last.fm API key", cfg.LastFM.APIKey)
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	if key == "" {
		return fmt.Errorf("API key is required")
	}
	cfg.LastFM.APIKey = key

	username, err := prompt(reader, out, "Default username (optional)", cfg.Username)
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	cfg.Username = username

	return nil
}

// prompt reads one line, returning current when the line is empty.
func prompt(reader *bufio.Reader, out io.Writer, label, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, current)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}

	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	if value := strings.TrimSpace(line); value != "" {
		return value, nil
	}
	return current, nil
}

// checkAPIKey makes one cheap call to confirm Last.fm accepts the key.
// An unknown default username is reported as well.
func checkAPIKey(ctx context.Context, cfg *config.Config) error {
	client, err := lastfm.NewClient(lastfm.Config{
		APIKey:  cfg.LastFM.APIKey,
		BaseURL: cfg.LastFM.BaseURL,
	})
	if err != nil {
		return err
	}

	user := cfg.Username
	if user == "" {
		user = "rj"
	}

	_, err = client.User().GetInfo(ctx, user)
	switch {
	case err == nil:
		return nil
	case lastfm.IsAuthError(err):
		return fmt.Errorf("Last.fm rejected the API key: %w", err)
	case errors.Is(err, lastfm.ErrUserNotFound):
		return fmt.Errorf("Last.fm user %q does not exist: %w", user, err)
	default:
		return fmt.Errorf("failed to reach Last.fm: %w", err)
	}
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/slush-dev/chromegcm"
	"github.com/spf13/cobra"
)

// messageSender is the part of *chromegcm.Client the send command uses.
type messageSender interface {
	Send(ctx context.Context, msg *chromegcm.Message) (*chromegcm.Result, error)
}

// buildMessage creates a plain-text message, or a JSON message when asJSON
// is set, in which case text must be a single JSON document. Numbers keep
// their original digits.
func buildMessage(text string, asJSON bool, channelIDs []string, opts []chromegcm.MessageOption) (*chromegcm.Message, error) {
	if !asJSON {
		return chromegcm.NewPlainTextMessage(text, channelIDs, opts...)
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("--json message is not valid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("--json message is not valid JSON: trailing data after document")
	}
	return chromegcm.NewJSONMessage(v, channelIDs, opts...)
}

func runSend(ctx context.Context, client messageSender, msg *chromegcm.Message, asYAML bool, stdout io.Writer) error {
	result, err := client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	printResult(stdout, result, asYAML)
	return nil
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to one or more channel IDs",
	Long:  "Send a message to one or more Chrome channel IDs. Use --json to send the message text as a JSON payload.",
	RunE: func(cmd *cobra.Command, args []string) error {
		channelIDs, _ := cmd.Flags().GetStringSlice("channel")
		text, _ := cmd.Flags().GetString("message")
		asJSON, _ := cmd.Flags().GetBool("json")
		subchannel, _ := cmd.Flags().GetInt("subchannel")
		length, _ := cmd.Flags().GetInt("length")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts, err := cfg.MessageOptions()
		if err != nil {
			return err
		}
		// Flags override the config file.
		if cmd.Flags().Changed("subchannel") {
			opts = append(opts, chromegcm.WithSubchannelID(subchannel))
		}
		if cmd.Flags().Changed("length") {
			opts = append(opts, chromegcm.WithMessageLength(length))
		}

		msg, err := buildMessage(text, asJSON, channelIDs, opts)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		client, err := newClient(ctx, cfg)
		if err != nil {
			return err
		}
		return runSend(ctx, client, msg, useYAML, os.Stdout)
	},
}

func init() {
	sendCmd.Flags().StringSliceP("channel", "c", nil, "Target channel ID (repeatable or comma-separated)")
	sendCmd.Flags().StringP("message", "m", "", "Message text to send")
	sendCmd.Flags().Bool("json", false, "Treat the message as a JSON document")
	sendCmd.Flags().Int("subchannel", 0, "Subchannel ID (0-3)")
	sendCmd.Flags().Int("length", chromegcm.DefaultMessageLength, "Maximum payload length in characters")
	sendCmd.MarkFlagRequired("channel")
	sendCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(sendCmd)
}

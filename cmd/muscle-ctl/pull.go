package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/multiscale/muscle3-sub001/pkg/protocol"
	"github.com/multiscale/muscle3-sub001/pkg/protocol/codec"
	"github.com/multiscale/muscle3-sub001/pkg/ref"
	"github.com/multiscale/muscle3-sub001/pkg/transport"
	"github.com/multiscale/muscle3-sub001/pkg/transports"
)

func newPullCmd() *cobra.Command {
	var (
		location string
		receiver string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull one message addressed to a receiver",
		Long: `pull connects to the post office at --location and retrieves the next
message queued for --receiver, waiting for one to be sent if necessary.
The message is removed from the queue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := ref.ParseReference(receiver)
			if err != nil {
				return failure("invalid receiver", err)
			}
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			msg, client, err := pull(ctx, location, r)
			if err != nil {
				return failure("pull failed", err)
			}
			success("received from %s via %s\n", msg.Sender, client)
			return printMessage(cmd.OutOrStdout(), msg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&location, "location", "", "post office location, e.g. tcp:10.0.0.1:9000")
	f.StringVar(&receiver, "receiver", "", "receiving endpoint, e.g. micro[3].in")
	f.DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits forever)")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("receiver")
	return cmd
}

func pull(ctx context.Context, location string, receiver ref.Reference) (*protocol.Message, string, error) {
	set, err := transports.Default()
	if err != nil {
		return nil, "", err
	}
	c, err := transport.Connect(ctx, set, location)
	if err != nil {
		return nil, "", err
	}
	defer c.Close()

	resp, err := c.Call(ctx, protocol.EncodeRequest(receiver))
	if err != nil {
		return nil, "", err
	}
	msg, err := protocol.DecodeMessage(resp)
	if err != nil {
		return nil, "", err
	}
	return msg, c.Kind().String() + ":" + c.Address(), nil
}

func printMessage(w io.Writer, m *protocol.Message) error {
	field(w, "sender", m.Sender.String())
	field(w, "receiver", m.Receiver.String())
	field(w, "timestamp", fmt.Sprint(m.Timestamp))
	if m.NextTimestamp != nil {
		field(w, "next_timestamp", fmt.Sprint(*m.NextTimestamp))
	}
	if m.PortLength != nil {
		field(w, "port_length", fmt.Sprint(*m.PortLength))
	}
	field(w, "message_number", fmt.Sprint(m.MessageNumber))
	field(w, "saved_until", fmt.Sprint(m.SavedUntil))

	settings, err := protocol.DecodeSettings(m.SettingsOverlay)
	if err != nil {
		return err
	}
	if len(settings) > 0 {
		b, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("render settings: %w", err)
		}
		field(w, "settings", string(b))
	}
	field(w, "data", describeData(m.Data))
	return nil
}

// describeData renders data as JSON when its format can be decoded without a
// schema.
func describeData(data []byte) string {
	if len(data) == 0 {
		return "(none)"
	}
	f := protocol.Format(data[0])
	switch f {
	case protocol.FormatJSON, protocol.FormatCBOR:
		var v any
		if _, err := protocol.DecodeData(codec.NewRegistry(), data, &v); err != nil {
			return fmt.Sprintf("%s, %d bytes, undecodable: %v", f, len(data)-1, err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%s, %d bytes, not renderable: %v", f, len(data)-1, err)
		}
		return string(b)
	default:
		return fmt.Sprintf("%s, %d bytes", f, len(data)-1)
	}
}

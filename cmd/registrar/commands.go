package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leettogether/leetstreak/internal/kafka"
)

type connectFunc func(brokers string) (*kafka.Producer, error)

type options struct {
	brokers string
	topic   string
}

func newRootCmd(connect connectFunc) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "registrar",
		Short: "Register LeetCode handles with the streak tracker",
		Long: `registrar publishes register and unregister events to the Kafka topic
the leetstreak daemon consumes. The daemon verifies the handle and applies
the change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.brokers, "brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	root.PersistentFlags().StringVar(&opts.topic, "topic", "leetstreak-registrations", "Registration topic")

	root.AddCommand(
		&cobra.Command{
			Use:   "register DISCORD_ID LEETCODE_USERNAME",
			Short: "Link a Discord user to a LeetCode handle",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, connect, opts, kafka.RegistrationEvent{
					Action:    kafka.ActionRegister,
					DiscordID: args[0],
					Handle:    args[1],
				})
			},
		},
		&cobra.Command{
			Use:   "unregister DISCORD_ID",
			Short: "Stop tracking a Discord user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return send(cmd, connect, opts, kafka.RegistrationEvent{
					Action:    kafka.ActionUnregister,
					DiscordID: args[0],
				})
			},
		},
	)
	return root
}

func send(cmd *cobra.Command, connect connectFunc, opts *options, ev kafka.RegistrationEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	p, err := connect(opts.brokers)
	if err != nil {
		return err
	}
	defer p.Close()

	sent, err := p.SendRegistration(opts.topic, ev)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s for %s (event %s)\n", sent.Action, sent.DiscordID, sent.ID)
	return nil
}

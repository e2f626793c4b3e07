package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/kafka"
)

func run(t *testing.T, sp *mocks.SyncProducer, args ...string) (string, error) {
	t.Helper()
	connect := func(string) (*kafka.Producer, error) {
		return kafka.NewProducerWith(sp, slog.Default()), nil
	}
	cmd := newRootCmd(connect)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func expectEvent(want kafka.RegistrationEvent) func([]byte) error {
	return func(val []byte) error {
		var got kafka.RegistrationEvent
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Action != want.Action || got.DiscordID != want.DiscordID || got.Handle != want.Handle {
			return fmt.Errorf("got %+v, want %+v", got, want)
		}
		return nil
	}
}

func TestRegisterCommand(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEvent(kafka.RegistrationEvent{
		Action: kafka.ActionRegister, DiscordID: "123", Handle: "alice",
	}))

	out, err := run(t, sp, "register", "123", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued register for 123")
}

func TestUnregisterCommand(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(expectEvent(kafka.RegistrationEvent{
		Action: kafka.ActionUnregister, DiscordID: "123",
	}))

	_, err := run(t, sp, "unregister", "123")
	require.NoError(t, err)
}

func TestRegisterRejectsBlankHandle(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	_, err := run(t, sp, "register", "123", " ")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	require.NoError(t, sp.Close())
}

func TestRegisterArgs(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	_, err := run(t, sp, "register", "123")
	assert.Error(t, err)
	require.NoError(t, sp.Close())
}

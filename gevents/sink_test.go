package gevents_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgewatch/combat-core/gevents"
)

func TestChannelSink_DeliversEvents(t *testing.T) {
	sink := gevents.NewChannelSink(4)
	sink.Publish(gevents.MatchStarted{Match: "m1"})

	select {
	case evt := <-sink.Events():
		require.Equal(t, gevents.MatchStarted{Match: "m1"}, evt)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestChannelSink_DropsWhenFull(t *testing.T) {
	sink := gevents.NewChannelSink(1)
	sink.Publish(gevents.MatchStarted{Match: "first"})
	sink.Publish(gevents.MatchStarted{Match: "second"})

	require.Equal(t, uint64(1), sink.Dropped())
}

func TestNoopSink_DiscardsEverything(t *testing.T) {
	var sink gevents.NoopSink
	sink.Publish(gevents.MatchStarted{Match: "ignored"})
}

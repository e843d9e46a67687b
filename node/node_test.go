package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarnet/bazaar/config"
	"github.com/bazaarnet/bazaar/internal/server"
	"github.com/bazaarnet/bazaar/libs/log"
)

func TestNodeStartStop(t *testing.T) {
	defer leaktest.Check(t)()

	n, err := NewDefault(config.TestConfig(), log.TestingLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, n.Start(ctx))
	require.True(t, n.IsRunning())
	require.NotNil(t, n.Server().ListenAddr())
	require.NotNil(t, n.InspectAddr())

	// canceling the start context stops the node
	cancel()
	done := make(chan struct{})
	go func() {
		n.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop")
	}
	assert.False(t, n.Server().IsRunning())
}

func TestNodeInspectDisabled(t *testing.T) {
	defer leaktest.Check(t)()

	cfg := config.TestConfig()
	cfg.Inspect.ListenAddress = ""

	n, err := NewDefault(cfg, log.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	defer n.Stop()

	require.Nil(t, n.InspectAddr())
}

func TestNodeRejectsInvalidConfig(t *testing.T) {
	cfg := config.TestConfig()
	cfg.Auction.Window = 0

	_, err := NewDefault(cfg, log.NewNopLogger())
	require.Error(t, err)
}

func TestNodeReportsRegisteredPeers(t *testing.T) {
	defer leaktest.Check(t)()

	n, err := NewDefault(config.TestConfig(), log.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	defer n.Stop()

	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	msg := fmt.Sprintf(`{"command":"REGISTER","rq":1,"name":"alice","ip":"127.0.0.1","udp_port":%d,"tcp_port":0}`,
		peer.LocalAddr().(*net.UDPAddr).Port)
	_, err = peer.WriteTo([]byte(msg), n.Server().ListenAddr())
	require.NoError(t, err)

	buf := make([]byte, 1024)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = peer.ReadFrom(buf)
	require.NoError(t, err)

	resp, err := http.Get("http://" + n.InspectAddr().String() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status server.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Len(t, status.Peers, 1)
	require.Equal(t, "alice", status.Peers[0].Name)
	require.Equal(t, n.Server().ListenAddr().String(), status.ListenAddress)
}

package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/api"
	"github.com/vocdoni/ticketvote/internal/testutil"
)

func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	qt.Assert(t, err, qt.IsNil)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestAPIServiceLifecycle(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	issuer := testutil.NewIssuer(t)
	pk, _ := testutil.Keys(t)
	bs := NewBallotService(testBallotConfig(t, t.TempDir(), uuid.New(), pk, issuer, 2))
	c.Assert(bs.Start(ctx), qt.IsNil)
	defer bs.Stop()

	port := freePort(t)
	as := NewAPI(api.APIConfig{
		Host:      "127.0.0.1",
		Port:      port,
		BallotBox: bs.BallotBox,
		PublicKey: pk.Marshal(),
	}, true)
	c.Assert(as.Start(ctx), qt.IsNil)
	c.Assert(as.Start(ctx), qt.ErrorMatches, "service already running")

	host, p := as.HostPort()
	c.Assert(host, qt.Equals, "127.0.0.1")
	c.Assert(p, qt.Equals, port)

	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, api.PingEndpoint)
	resp, err := http.Get(url)
	c.Assert(err, qt.IsNil)
	resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)

	as.Stop()
	_, err = http.Get(url)
	c.Assert(err, qt.IsNotNil)
	// stopping twice is a no-op
	as.Stop()
}

package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/types"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	acl     map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.objects[r.URL.Path] = body
	f.acl[r.URL.Path] = r.Header.Get("x-amz-acl")
	f.mu.Unlock()
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func TestS3Export(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}, acl: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	exporter, err := NewS3Exporter(ctx, &S3Config{
		Enabled:    true,
		Endpoint:   srv.URL,
		AccessKey:  "key",
		SecretKey:  "secret",
		Bucket:     "results",
		Prefix:     "epochs",
		PublicRead: true,
	})
	c.Assert(err, qt.IsNil)

	epoch := &types.Epoch{
		EventID:       uuid.New(),
		Options:       2,
		Ballots:       7,
		Weight:        2,
		EncryptionKey: types.HexBytes{0xaa, 0xbb},
		ClosedAt:      time.Now().UTC().Truncate(time.Second),
	}
	tallies := [][]byte{{0x01}, {0x02}}
	c.Assert(exporter.Export(ctx, epoch, tallies), qt.IsNil)

	path := "/results/epochs/" + epoch.EventID.String() + "/tally.json"
	fake.mu.Lock()
	body, ok := fake.objects[path]
	acl := fake.acl[path]
	fake.mu.Unlock()
	c.Assert(ok, qt.IsTrue, qt.Commentf("objects: %v", fake.objects))
	c.Assert(acl, qt.Equals, "public-read")

	var doc TallyExport
	c.Assert(json.Unmarshal(body, &doc), qt.IsNil)
	c.Assert(doc.EventID, qt.Equals, epoch.EventID)
	c.Assert(doc.Ballots, qt.Equals, uint64(7))
	c.Assert(doc.Weight, qt.Equals, uint64(2))
	c.Assert(doc.Tallies, qt.DeepEquals, []types.HexBytes{{0x01}, {0x02}})
	c.Assert(doc.ClosedAt.Equal(epoch.ClosedAt), qt.IsTrue)
}

func TestS3ExporterConfig(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	_, err := NewS3Exporter(ctx, &S3Config{})
	c.Assert(err, qt.ErrorMatches, "s3 export not enabled")
	_, err = NewS3Exporter(ctx, &S3Config{Enabled: true, Bucket: "b"})
	c.Assert(err, qt.ErrorMatches, "s3 access key and secret key are required")
	_, err = NewS3Exporter(ctx, &S3Config{Enabled: true, AccessKey: "a", SecretKey: "s"})
	c.Assert(err, qt.ErrorMatches, "s3 bucket is required")
}

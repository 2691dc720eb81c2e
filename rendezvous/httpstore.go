package rendezvous

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"
	"github.com/valyala/fasthttp"

	"github.com/tao-jia/collgroup/internal/xlog"
	"github.com/tao-jia/collgroup/internal/xmetrics"
)

var httpLog = xlog.New("component", "rendezvous/http")

// HTTPServer exposes a Store over HTTP using fasthttp, backed by an
// embedded buntdb key/value engine instead of a bare map so wait/get
// benefit from buntdb's indexed range scans and optional persistence.
// This is the network-reachable rendezvous service real multi-process
// deployments point their group members at.
type HTTPServer struct {
	db     *buntdb.DB
	server *fasthttp.Server
	addr   string
}

// NewHTTPServer opens (or creates) the buntdb-backed store at path
// (":memory:" for an ephemeral in-RAM store) and prepares an HTTP
// server that has not started listening yet.
func NewHTTPServer(path string) (*HTTPServer, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "rendezvous: open buntdb")
	}
	s := &HTTPServer{db: db}
	s.server = &fasthttp.Server{Handler: s.handle, Name: "collgroup-rendezvous"}
	return s, nil
}

// ListenAndServe blocks serving HTTP on addr until the listener
// fails or the process exits.
func (s *HTTPServer) ListenAndServe(addr string) error {
	s.addr = addr
	httpLog.Info("rendezvous store listening", "addr", addr)
	return s.server.ListenAndServe(addr)
}

// Close shuts the HTTP server and the backing database down.
func (s *HTTPServer) Close() error {
	if err := s.server.Shutdown(); err != nil {
		return err
	}
	return s.db.Close()
}

func (s *HTTPServer) handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case strings.HasPrefix(path, "/set/"):
		s.handleSet(ctx, strings.TrimPrefix(path, "/set/"))
	case strings.HasPrefix(path, "/get/"):
		s.handleGet(ctx, strings.TrimPrefix(path, "/get/"))
	case path == "/wait":
		s.handleWait(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *HTTPServer) handleSet(ctx *fasthttp.RequestCtx, key string) {
	encoded := base64.StdEncoding.EncodeToString(ctx.PostBody())
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, encoded, nil)
		return err
	})
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		fmt.Fprint(ctx, err.Error())
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *HTTPServer) handleGet(ctx *fasthttp.RequestCtx, key string) {
	var encoded string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		encoded = v
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		fmt.Fprint(ctx, err.Error())
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.Write(decoded)
}

func (s *HTTPServer) handleWait(ctx *fasthttp.RequestCtx) {
	keys := strings.Split(string(ctx.QueryArgs().Peek("keys")), ",")
	timeoutMS, _ := strconv.Atoi(string(ctx.QueryArgs().Peek("timeout_ms")))
	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	deadline := time.Now().Add(timeout)
	for {
		if s.hasAll(keys) {
			ctx.SetStatusCode(fasthttp.StatusOK)
			return
		}
		if time.Now().After(deadline) {
			ctx.SetStatusCode(fasthttp.StatusRequestTimeout)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *HTTPServer) hasAll(keys []string) bool {
	for _, k := range keys {
		err := s.db.View(func(tx *buntdb.Tx) error {
			_, err := tx.Get(k)
			return err
		})
		if err != nil {
			return false
		}
	}
	return true
}

// HTTPStore is the client-side Store implementation talking to an
// HTTPServer: it exposes the same set/get/wait surface against a
// network-reachable process instead of an in-memory map.
type HTTPStore struct {
	client  *fasthttp.Client
	baseURL string
}

// NewHTTPStore builds a client pointed at an HTTPServer's address
// ("host:port", no scheme).
func NewHTTPStore(addr string) *HTTPStore {
	return &HTTPStore{client: &fasthttp.Client{}, baseURL: "http://" + addr}
}

func (c *HTTPStore) Set(ctx context.Context, key string, value []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/set/" + key)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetBody(value)
	if err := c.do(ctx, req, resp); err != nil {
		return err
	}
	if resp.StatusCode() != fasthttp.StatusNoContent {
		return errors.Errorf("rendezvous: set %q: status %d", key, resp.StatusCode())
	}
	return nil
}

func (c *HTTPStore) Get(ctx context.Context, key string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/get/" + key)
	if err := c.do(ctx, req, resp); err != nil {
		return nil, err
	}
	if resp.StatusCode() == fasthttp.StatusNotFound {
		return nil, errors.WithMessagef(ErrNotFound, "key %q", key)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, errors.Errorf("rendezvous: get %q: status %d", key, resp.StatusCode())
	}
	return append([]byte{}, resp.Body()...), nil
}

func (c *HTTPStore) Wait(ctx context.Context, keys []string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	start := time.Now()
	defer func() {
		xmetrics.RendezvousLatency.WithLabelValues("http").Observe(time.Since(start).Seconds())
	}()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/wait?keys=%s&timeout_ms=%d", c.baseURL, strings.Join(keys, ","), timeout.Milliseconds()))
	if err := c.do(ctx, req, resp); err != nil {
		return err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return errors.Errorf("rendezvous: wait %v: status %d", keys, resp.StatusCode())
	}
	return nil
}

func (c *HTTPStore) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return c.client.Do(req, resp)
	}
	return c.client.DoDeadline(req, resp, deadline)
}

// Copyright 2026 The Nodevisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/gdamore/nodevisor"
	"github.com/gdamore/nodevisor/updater"
)

// UpdateFunc installs staged binaries.
type UpdateFunc func() (*updater.Report, error)

var errBadRequest = errors.New("Bad request")

const (
	pingPeriod = 15 * time.Second
	writeWait  = 10 * time.Second
)

// Handler wraps a Supervisor, adding http.Handler functionality.
type Handler struct {
	s        *nodevisor.Supervisor
	r        *mux.Router
	user     string
	hash     []byte
	update   UpdateFunc
	upgrader websocket.Upgrader
	logger   *log.Logger
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	h.writeJsonCode(w, http.StatusOK, v)
}

func (h *Handler) writeJsonCode(w http.ResponseWriter, code int, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(code)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	h.writeJsonCode(w, e.Code, e)
}

// fail maps an error from the supervisor or updater onto a status code.
func (h *Handler) fail(w http.ResponseWriter, e error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(e, nodevisor.ErrUnknownNode),
		errors.Is(e, updater.ErrNoStagingSource),
		errors.Is(e, updater.ErrNothingToUpdate):
		code = http.StatusNotFound
	case errors.Is(e, nodevisor.ErrAlreadyRunning),
		errors.Is(e, nodevisor.ErrShuttingDown),
		errors.Is(e, nodevisor.ErrDependency),
		errors.Is(e, nodevisor.ErrClosed):
		code = http.StatusConflict
	case errors.Is(e, nodevisor.ErrBadStream), errors.Is(e, errBadRequest):
		code = http.StatusBadRequest
	}
	h.writeError(w, &Error{Code: code, Message: e.Error()})
}

// pollWait holds the request while the client's poll etag is current.
func pollWait(r *http.Request, cur int64, watch func(int64, time.Duration) int64) int64 {
	if r.Header.Get(PollEtagHeader) != formatEtag(cur) {
		return cur
	}
	secs, e := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if e != nil || secs <= 0 {
		return cur
	}
	if secs > MaxPollTime {
		secs = MaxPollTime
	}
	return watch(cur, time.Duration(secs)*time.Second)
}

// notModified answers 304 if the client already has etag.
func notModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("Etag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.user == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if ok && subtle.ConstantTimeCompare([]byte(user), []byte(h.user)) == 1 &&
			bcrypt.CompareHashAndPassword(h.hash, []byte(pass)) == nil {
			next.ServeHTTP(w, r)
			return
		}
		h.logger.Warn("Rejected request", "remote", r.RemoteAddr, "path", r.URL.Path)
		w.Header().Set("WWW-Authenticate", `Basic realm="nodevisor"`)
		h.writeError(w, &Error{Code: http.StatusUnauthorized, Message: "Unauthorized"})
	})
}

func (h *Handler) getInfo(w http.ResponseWriter, r *http.Request) {
	serial := pollWait(r, h.s.Serial(), h.s.WatchSerial)
	if notModified(w, r, formatEtag(serial)) {
		return
	}
	h.writeJson(w, h.s.GetInfo())
}

func (h *Handler) listNodes(w http.ResponseWriter, r *http.Request) {
	serial := pollWait(r, h.s.Serial(), h.s.WatchSerial)
	if notModified(w, r, formatEtag(serial)) {
		return
	}
	h.writeJson(w, h.s.Infos())
}

func (h *Handler) findNode(r *http.Request) (nodevisor.Role, error) {
	return nodevisor.ParseRole(mux.Vars(r)["node"])
}

func (h *Handler) getNode(w http.ResponseWriter, r *http.Request) {
	role, e := h.findNode(r)
	if e != nil {
		h.fail(w, e)
		return
	}
	serial := pollWait(r, h.s.Serial(), h.s.WatchSerial)
	if notModified(w, r, formatEtag(serial)) {
		return
	}
	info, e := h.s.Info(role)
	if e != nil {
		h.fail(w, e)
		return
	}
	h.writeJson(w, info)
}

func (h *Handler) launchNode(w http.ResponseWriter, r *http.Request) {
	role, e := h.findNode(r)
	if e != nil {
		h.fail(w, e)
		return
	}
	if e := h.s.Launch(role); e != nil {
		h.fail(w, e)
		return
	}
	h.writeJson(w, ok)
}

func (h *Handler) shutdown(w http.ResponseWriter, r *http.Request) {
	target, e := nodevisor.ParseTarget(r.URL.Query().Get("target"))
	if e != nil {
		h.writeError(w, &Error{Code: http.StatusBadRequest, Message: e.Error()})
		return
	}
	h.logger.Info("Shutdown requested", "target", target, "remote", r.RemoteAddr)
	h.s.Shutdown(target)
	h.writeJsonCode(w, http.StatusAccepted, &ShutdownResponse{Target: target})
}

func (h *Handler) runUpdate(w http.ResponseWriter, r *http.Request) {
	if h.update == nil {
		h.writeError(w, &Error{Code: http.StatusNotImplemented, Message: "Updates not configured"})
		return
	}
	rep, e := h.update()
	if e != nil {
		h.fail(w, e)
		return
	}
	h.writeJson(w, rep)
}

// logParams extracts the node, optional stream and since id.
func (h *Handler) logParams(r *http.Request) (*nodevisor.Output, *nodevisor.Stream, int64, error) {
	role, e := h.findNode(r)
	if e != nil {
		return nil, nil, 0, e
	}
	out, e := h.s.Output(role)
	if e != nil {
		return nil, nil, 0, e
	}
	q := r.URL.Query()
	var stream *nodevisor.Stream
	if name := q.Get("stream"); name != "" {
		st, e := nodevisor.ParseStream(name)
		if e != nil {
			return nil, nil, 0, e
		}
		stream = &st
	}
	var since int64
	if v := q.Get("since"); v != "" {
		if since, e = strconv.ParseInt(v, 10, 64); e != nil {
			return nil, nil, 0, errors.Wrap(errBadRequest, "since")
		}
	}
	return out, stream, since, nil
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	out, stream, since, e := h.logParams(r)
	if e != nil {
		h.fail(w, e)
		return
	}
	var recs []LogRecord
	if stream != nil {
		l := out.Log(*stream)
		serial := pollWait(r, l.Serial(), l.Watch)
		if notModified(w, r, formatEtag(serial)) {
			return
		}
		recs = l.Since(since)
	} else {
		serial := pollWait(r, out.Serial(), out.Watch)
		if notModified(w, r, formatEtag(serial)) {
			return
		}
		recs = out.Since(since)
	}
	if recs == nil {
		recs = []LogRecord{}
	}
	h.writeJson(w, recs)
}

// streamLog pushes log records over a websocket as they arrive.
func (h *Handler) streamLog(w http.ResponseWriter, r *http.Request) {
	out, stream, since, e := h.logParams(r)
	if e != nil {
		h.fail(w, e)
		return
	}
	conn, e := h.upgrader.Upgrade(w, r, nil)
	if e != nil {
		// Upgrade has already replied.
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, e := conn.ReadMessage(); e != nil {
				return
			}
		}
	}()

	last := since
	for {
		cur := out.Serial()
		for _, rec := range out.Since(last) {
			last = rec.Id
			if stream != nil && rec.Stream != *stream {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if e := conn.WriteJSON(rec); e != nil {
				return
			}
		}
		select {
		case <-closed:
			return
		default:
		}
		if out.Watch(cur, pingPeriod) == cur {
			e := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if e != nil {
				return
			}
		}
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

// SetAuth requires HTTP Basic authentication.  hash is a bcrypt hash of
// the password.  An empty user disables authentication.
func (h *Handler) SetAuth(user string, hash string) {
	h.user = user
	h.hash = []byte(hash)
}

// SetUpdater enables POST /update.
func (h *Handler) SetUpdater(fn UpdateFunc) {
	h.update = fn
}

func (h *Handler) SetLogger(l *log.Logger) {
	h.logger = l
}

func NewHandler(s *nodevisor.Supervisor) *Handler {
	r := mux.NewRouter()
	h := &Handler{
		s:      s,
		r:      r,
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "rest"}),
	}
	r.Use(h.authenticate)
	r.HandleFunc("/", h.getInfo).Methods("GET")
	r.HandleFunc("/nodes", h.listNodes).Methods("GET")
	r.HandleFunc("/nodes/{node}", h.getNode).Methods("GET")
	r.HandleFunc("/nodes/{node}/launch", h.launchNode).Methods("POST")
	r.HandleFunc("/nodes/{node}/log", h.getLog).Methods("GET")
	r.HandleFunc("/nodes/{node}/log/stream", h.streamLog).Methods("GET")
	r.HandleFunc("/shutdown", h.shutdown).Methods("POST")
	r.HandleFunc("/update", h.runUpdate).Methods("POST")
	return h
}

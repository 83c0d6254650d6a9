package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/llmsim/simulator/internal/engine"
	"github.com/llmsim/simulator/internal/logger"
	"github.com/llmsim/simulator/internal/provider"
)

// handleOpenAI serves both /v1/chat/completions and /v1/embeddings: the
// adapter itself disambiguates on the "input" vs "messages" key, so one
// handler covers both routes.
func (s *Server) handleOpenAI(c *gin.Context) {
	s.handle(c, provider.NewOpenAI(), "")
}

func (s *Server) handleAnthropic(c *gin.Context) {
	s.handle(c, provider.NewAnthropic(), "")
}

// handleGoogle splits the trailing `:method` off the final path segment,
// since Google's own wire convention embeds the operation name in the URL
// rather than the body (`/v1/models/gemini-1.5-pro:generateContent`).
func (s *Server) handleGoogle(c *gin.Context) {
	seg := c.Param("modelAndMethod")
	seg = strings.TrimPrefix(seg, "/")

	idx := strings.LastIndex(seg, ":")
	if idx < 0 {
		s.writeError(c, provider.NewGoogle(), http.StatusNotFound, engine.ErrModelNotFound, "missing :method suffix")
		return
	}
	model, method := seg[:idx], seg[idx+1:]

	switch method {
	case "generateContent":
		s.handle(c, provider.NewGoogle(), model)
	case "streamGenerateContent":
		s.handleStream(c, provider.NewGoogle(), model)
	default:
		s.writeError(c, provider.NewGoogle(), http.StatusNotFound, engine.ErrModelNotFound, "unknown method "+method)
	}
}

// handle implements the non-streaming request lifecycle shared by every
// vendor route: admission, parse, dispatch, render — falling through to
// dispatchStream when the parsed request asks for streaming.
func (s *Server) handle(c *gin.Context, adapter provider.Adapter, urlModel string) {
	if !s.admission.TryAcquire() {
		s.writeError(c, adapter, http.StatusServiceUnavailable, engine.ErrResourceExhausted, "too many concurrent requests")
		return
	}
	defer s.admission.Release()

	body, err := c.GetRawData()
	if err != nil {
		s.writeError(c, adapter, http.StatusBadRequest, engine.ErrInvalidRequest, "failed to read request body")
		return
	}

	req, err := adapter.ParseRequest(body, urlModel)
	if err != nil {
		s.writeError(c, adapter, http.StatusBadRequest, engine.ErrInvalidRequest, err.Error())
		return
	}
	req.AuthPrincipal = c.GetHeader("Authorization")

	if req.Parameters.Stream {
		s.dispatchStream(c, adapter, req)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.dispatcher.Dispatch(ctx, req)
	s.stats.RecordLatency(time.Since(start))
	if err != nil {
		s.writeDispatchError(c, adapter, err)
		return
	}

	out, err := adapter.RenderResponse(resp)
	if err != nil {
		logger.WithRequest(requestIDFrom(c), req.Fingerprint().String()).Errorw("render response failed", "err", err)
		s.writeError(c, adapter, http.StatusInternalServerError, engine.ErrServerError, "failed to render response")
		return
	}
	c.Data(http.StatusOK, adapter.ContentType(), out)
}

func (s *Server) handleStream(c *gin.Context, adapter provider.Adapter, urlModel string) {
	if !s.admission.TryAcquire() {
		s.writeError(c, adapter, http.StatusServiceUnavailable, engine.ErrResourceExhausted, "too many concurrent requests")
		return
	}
	defer s.admission.Release()

	body, err := c.GetRawData()
	if err != nil {
		s.writeError(c, adapter, http.StatusBadRequest, engine.ErrInvalidRequest, "failed to read request body")
		return
	}

	req, err := adapter.ParseRequest(body, urlModel)
	if err != nil {
		s.writeError(c, adapter, http.StatusBadRequest, engine.ErrInvalidRequest, err.Error())
		return
	}
	req.AuthPrincipal = c.GetHeader("Authorization")
	req.Parameters.Stream = true

	s.dispatchStream(c, adapter, req)
}

// dispatchStream wires the dispatcher's ChunkEvent channel into the
// adapter's frame writer, set up the same way across all three dialects:
// SSE/ndjson headers, then one RenderChunk call per event until a terminal
// kind is rendered.
func (s *Server) dispatchStream(c *gin.Context, adapter provider.Adapter, req *engine.NormalizedRequest) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	events, err := s.dispatcher.Stream(ctx, req)
	if err != nil {
		s.writeDispatchError(c, adapter, err)
		return
	}

	family := familyFromAdapter(adapter)
	c.Header("Content-Type", provider.StreamContentType(family))
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for ev := range events {
		if err := adapter.RenderChunk(c.Writer, req.ModelID, ev); err != nil {
			logger.WithRequest(requestIDFrom(c), req.Fingerprint().String()).Errorw("stream write failed", "err", err)
			return
		}
		if ev.Kind() == engine.ChunkError {
			return
		}
	}
}

func familyFromAdapter(a provider.Adapter) string {
	switch a.(type) {
	case *provider.Anthropic:
		return "anthropic"
	case *provider.Google:
		return "google"
	default:
		return "openai"
	}
}

func (s *Server) listModels(c *gin.Context) {
	caps := s.registry.List("")
	body, err := provider.RenderModelsList(caps)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) getModel(c *gin.Context) {
	cap, err := s.registry.Resolve(c.Param("id"))
	if err != nil {
		s.writeError(c, provider.NewOpenAI(), http.StatusNotFound, engine.ErrModelNotFound, "model not found")
		return
	}
	body, err := provider.RenderModelsList([]engine.Capability{cap})
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	if s.draining.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "draining"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"in_flight": s.admission.InFlight(),
		"capacity":  s.admission.Capacity(),
	})
}

func (s *Server) writeDispatchError(c *gin.Context, adapter provider.Adapter, err error) {
	if simErr, ok := err.(*engine.SimError); ok {
		s.writeError(c, adapter, simErr.Kind.HTTPStatus(), simErr.Kind, simErr.Message)
		return
	}
	s.writeError(c, adapter, http.StatusInternalServerError, engine.ErrServerError, err.Error())
}

func (s *Server) writeError(c *gin.Context, adapter provider.Adapter, status int, kind engine.ErrorKind, message string) {
	body, err := adapter.RenderError(kind, message)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, adapter.ContentType(), body)
}

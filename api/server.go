// Package api exposes the thin HTTP boundary over the vote pipeline:
// submission returns 202 Accepted and the commit happens in the worker
// pool. Synchronous validation failures map to 4xx; everything past the
// enqueue is observable through the WebSocket feed or by polling results.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/vote"
)

// Server wires the vote service into gin handlers.
type Server struct {
	votes  *vote.Service
	ledger vote.Ledger
	ws     http.Handler
	logger *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithWebSocket mounts a WebSocket upgrade handler at GET /ws.
func WithWebSocket(h http.Handler) Option {
	return func(s *Server) { s.ws = h }
}

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates the API server.
func NewServer(votes *vote.Service, ledger vote.Ledger, opts ...Option) *Server {
	s := &Server{
		votes:  votes,
		ledger: ledger,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts all routes on the given router.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)

	polls := r.Group("/api/polls/:poll_id")
	{
		polls.POST("/votes", s.handleSubmitVote)
		polls.GET("/results", s.handleResults)
		polls.GET("/remaining-points", s.handleRemainingPoints)
		polls.GET("/can-vote", s.handleCanVote)
	}

	if s.ws != nil {
		r.GET("/ws", gin.WrapH(s.ws))
	}
}

// Router builds a gin engine with the server's routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	s.Register(r)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// votePayload is the expected vote request body.
type votePayload struct {
	OptionID        string `json:"option_id" binding:"required"`
	ParticipantKind string `json:"participant_kind" binding:"required"`
	ParticipantID   string `json:"participant_id" binding:"required"`
	Points          int    `json:"points"`
}

// handleSubmitVote validates synchronously and enqueues the vote intent.
// The response is 202 in both the fresh-enqueue and the coalesced case:
// the participant's vote is processing in the background either way.
func (s *Server) handleSubmitVote(c *gin.Context) {
	pollID, err := id.ParsePollID(c.Param("poll_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid poll id"})
		return
	}

	var payload votePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vote payload"})
		return
	}

	optionID, err := id.ParseOptionID(payload.OptionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid option id"})
		return
	}

	participant, err := parseParticipant(payload.ParticipantKind, payload.ParticipantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	points := payload.Points
	if points == 0 {
		points = 1
	}

	j, err := s.votes.Submit(c.Request.Context(), pollID, optionID, participant, points)
	if err != nil {
		if errors.Is(err, voteflow.ErrPollNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "poll not found"})
			return
		}
		s.logger.Error("vote submission failed",
			slog.String("poll_id", pollID.String()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"status": "accepted"}
	if j != nil {
		resp["job_id"] = j.ID.String()
	}
	c.JSON(http.StatusAccepted, resp)
}

// handleResults tallies the committed ledger for a poll.
func (s *Server) handleResults(c *gin.Context) {
	pollID, err := id.ParsePollID(c.Param("poll_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid poll id"})
		return
	}

	votes, err := s.ledger.ListVotes(c.Request.Context(), pollID)
	if err != nil {
		s.logger.Error("list votes failed",
			slog.String("poll_id", pollID.String()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load results"})
		return
	}

	tally := make(map[string]int)
	for _, v := range votes {
		tally[v.OptionID.String()] += v.Points
	}

	c.JSON(http.StatusOK, gin.H{
		"poll_id": pollID.String(),
		"tally":   tally,
		"votes":   len(votes),
	})
}

func (s *Server) handleRemainingPoints(c *gin.Context) {
	pollID, err := id.ParsePollID(c.Param("poll_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid poll id"})
		return
	}

	participant, err := parseParticipant(c.Query("participant_kind"), c.Query("participant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	points, err := s.votes.RemainingPoints(c.Request.Context(), pollID, participant)
	if err != nil {
		if errors.Is(err, voteflow.ErrPollNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "poll not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"remaining_points": points})
}

func (s *Server) handleCanVote(c *gin.Context) {
	pollID, err := id.ParsePollID(c.Param("poll_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid poll id"})
		return
	}

	participant, err := parseParticipant(c.Query("participant_kind"), c.Query("participant_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ok, err := s.votes.CanVote(c.Request.Context(), pollID, participant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check eligibility"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"can_vote": ok})
}

// parseParticipant builds a typed participant reference from its wire form.
func parseParticipant(kind, participantID string) (vote.Participant, error) {
	k := vote.ParticipantKind(kind)
	if !k.Valid() {
		return vote.Participant{}, errors.New("invalid participant kind")
	}
	pid, err := id.ParseParticipantID(participantID)
	if err != nil {
		return vote.Participant{}, errors.New("invalid participant id")
	}
	return vote.Participant{Kind: k, ID: pid}, nil
}

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thyrook/thinkmate/internal/decision"
)

// MoveSelector picks a move for a position. A nil selection with a nil
// error means there is no move to play.
type MoveSelector interface {
	SelectMove(fen string) (*decision.Selection, error)
}

type moveRequest struct {
	FEN string `json:"fen"`
}

type moveResponse struct {
	Move       *string              `json:"move"`
	Candidates []decision.Candidate `json:"candidates,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// MoveApi serves move requests from a selector
type MoveApi struct {
	Selector MoveSelector
	logger   *zap.Logger
}

func NewMoveApi(selector MoveSelector, logger *zap.Logger) *MoveApi {
	return &MoveApi{
		Selector: selector,
		logger:   logger,
	}
}

func (m *MoveApi) Move(ctx *gin.Context) {
	var req moveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	// no position, no move
	if strings.TrimSpace(req.FEN) == "" {
		ctx.JSON(http.StatusOK, moveResponse{})
		return
	}

	sel, err := m.Selector.SelectMove(req.FEN)
	if err != nil {
		m.logger.Error("Move request failed", zap.String("fen", req.FEN), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, moveResponse{Error: err.Error()})
		return
	}

	if sel == nil {
		ctx.JSON(http.StatusOK, moveResponse{})
		return
	}
	ctx.JSON(http.StatusOK, moveResponse{
		Move:       &sel.Move,
		Candidates: sel.Candidates,
	})
}

func (m *MoveApi) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// NewRouter wires the move endpoints with recovery and request logging.
func NewRouter(selector MoveSelector, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())

	moves := NewMoveApi(selector, logger)
	router.POST("/move", moves.Move)
	router.GET("/health", moves.Health)
	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		logger.Info("Request",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", ctx.ClientIP()))
	}
}

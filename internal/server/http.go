package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"progminer/internal/driver/device"
)

// WorkRequest is the POST /api/v1/work payload.
type WorkRequest struct {
	Header     string `json:"header" binding:"required"`
	Height     uint64 `json:"height" binding:"required"`
	Boundary   string `json:"boundary" binding:"required"`
	StartNonce uint64 `json:"start_nonce"`
}

// API serves the control plane over a Rig.
type API struct {
	rig        *Rig
	router     *gin.Engine
	srv        *http.Server
	shutdownCh chan struct{}
}

// NewAPI builds the router. shutdownCh is signalled once when a client
// posts /api/v1/shutdown.
func NewAPI(rig *Rig) *API {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	a := &API{
		rig:        rig,
		router:     router,
		shutdownCh: make(chan struct{}),
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", a.handleHealth)
		v1.GET("/devices", a.handleDevices)
		v1.GET("/metrics", a.handleMetrics)
		v1.GET("/epoch/:n", a.handleEpoch)
		v1.POST("/work", a.handleWork)
		v1.GET("/solutions", a.handleSolutions)
		v1.POST("/shutdown", a.handleShutdown)
	}
	return a
}

// ShutdownRequested closes when a shutdown was posted.
func (a *API) ShutdownRequested() <-chan struct{} {
	return a.shutdownCh
}

// Router exposes the gin engine, mostly for tests.
func (a *API) Router() *gin.Engine {
	return a.router
}

// ListenAndServe blocks until ctx is cancelled, then drains the server.
func (a *API) ListenAndServe(ctx context.Context, port int) error {
	a.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: a.router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API server listening on %s", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.srv.Shutdown(shutdownCtx)
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"driver":  a.rig.Driver(),
		"devices": len(a.rig.Devices()),
		"uptime":  a.rig.Uptime().Round(time.Second).String(),
	})
}

func (a *API) handleDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"devices": a.rig.Devices()})
}

func (a *API) handleMetrics(c *gin.Context) {
	devices := a.rig.Devices()

	var hashes, solutions uint64
	for _, d := range devices {
		hashes += d.Stats.HashesAttempted
		solutions += d.Stats.SolutionsFound
	}

	uptime := a.rig.Uptime().Seconds()
	var rate float64
	if uptime > 0 {
		rate = float64(hashes) / uptime
	}

	c.JSON(http.StatusOK, gin.H{
		"hashes_attempted": hashes,
		"solutions_found":  solutions,
		"hash_rate":        rate,
		"uptime_seconds":   uint64(uptime),
		"devices":          devices,
	})
}

func (a *API) handleEpoch(c *gin.Context) {
	n, err := strconv.ParseInt(c.Param("n"), 10, 32)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid epoch number"})
		return
	}
	seed := device.SeedHash(int32(n))
	c.JSON(http.StatusOK, gin.H{
		"epoch": n,
		"seed":  hexutil.Encode(seed[:]),
	})
}

func (a *API) handleWork(c *gin.Context) {
	var req WorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	headerBytes, err := hexutil.Decode(req.Header)
	if err != nil || len(headerBytes) != common.HashLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "header must be a 32-byte hex string"})
		return
	}
	boundary, err := hexutil.DecodeUint64(req.Boundary)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "boundary must be a hex quantity"})
		return
	}

	work := device.Work{
		Header:     common.BytesToHash(headerBytes),
		Height:     req.Height,
		Epoch:      device.EpochOf(req.Height),
		Boundary:   boundary,
		StartNonce: req.StartNonce,
	}
	a.rig.SubmitWork(work)

	c.JSON(http.StatusAccepted, gin.H{
		"height": work.Height,
		"epoch":  work.Epoch,
	})
}

func (a *API) handleSolutions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"solutions": a.rig.Solutions()})
}

func (a *API) handleShutdown(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "shutting down"})
	select {
	case <-a.shutdownCh:
	default:
		close(a.shutdownCh)
	}
}

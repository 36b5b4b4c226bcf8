package service

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prognos-io/prognos/prog"
)

// apiSummary mirrors prog.Summary with nullable statistics; JSON has no way
// to spell NaN, so all-censored cycles serve null.
type apiSummary struct {
	Count          int      `json:"count"`
	Finite         int      `json:"finite"`
	FiniteFraction float64  `json:"finiteFraction"`
	Mean           *float64 `json:"mean"`
	SD             *float64 `json:"sd"`
	Min            *float64 `json:"min"`
	Max            *float64 `json:"max"`
	P05            *float64 `json:"p05"`
	P25            *float64 `json:"p25"`
	Median         *float64 `json:"median"`
	P75            *float64 `json:"p75"`
	P95            *float64 `json:"p95"`
}

func toAPISummary(s prog.Summary) apiSummary {
	return apiSummary{
		Count:          s.Count,
		Finite:         s.Finite,
		FiniteFraction: s.FiniteFraction(),
		Mean:           finiteOrNil(s.Mean),
		SD:             finiteOrNil(s.SD),
		Min:            finiteOrNil(s.Min),
		Max:            finiteOrNil(s.Max),
		P05:            finiteOrNil(s.P05),
		P25:            finiteOrNil(s.P25),
		Median:         finiteOrNil(s.Median),
		P75:            finiteOrNil(s.P75),
		P95:            finiteOrNil(s.P95),
	}
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NewRouter serves a service's state over HTTP: liveness, pipeline status,
// and per-event and per-output views of the latest prediction cycle.
func NewRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/events/:name", s.handleEvent)
	v1.GET("/outputs/:name", s.handleOutput)
	return r
}

func (s *Service) handleStatus(c *gin.Context) {
	res := s.prognoser.Results()
	status := gin.H{
		"initialized": s.prognoser.Initialized(),
		"lastTime":    s.prognoser.LastTime(),
		"cycles":      res.Cycles(),
		"ticks":       s.TickCounts(),
		"events":      res.EventNames(),
		"outputs":     res.OutputNames(),
	}
	if t, ok := res.CycleTime(); ok {
		status["cycleTime"] = t
	}
	c.JSON(http.StatusOK, status)
}

func (s *Service) handleEvent(c *gin.Context) {
	name := c.Param("name")
	res := s.prognoser.Results()
	if _, ok := res.CycleTime(); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prediction cycle committed yet"})
		return
	}
	toe, err := res.TimeOfEvent(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	t, _ := res.CycleTime()
	c.JSON(http.StatusOK, gin.H{
		"event":   name,
		"cycle":   res.Cycles(),
		"t":       t,
		"summary": toAPISummary(prog.Summarize(toe.SampleSlice())),
	})
}

// handleOutput serves a per-step summary band of the trajectory cloud
// rather than the raw samples-by-horizon matrix.
func (s *Service) handleOutput(c *gin.Context) {
	name := c.Param("name")
	res := s.prognoser.Results()
	if _, ok := res.CycleTime(); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prediction cycle committed yet"})
		return
	}
	rows, err := res.Trajectory(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	horizon := res.Horizon()
	mean := make([]*float64, horizon)
	p05 := make([]*float64, horizon)
	p95 := make([]*float64, horizon)
	col := make([]float64, len(rows))
	for k := 0; k < horizon; k++ {
		for i, row := range rows {
			col[i] = row[k]
		}
		sum := prog.Summarize(col)
		mean[k] = finiteOrNil(sum.Mean)
		p05[k] = finiteOrNil(sum.P05)
		p95[k] = finiteOrNil(sum.P95)
	}
	t, _ := res.CycleTime()
	c.JSON(http.StatusOK, gin.H{
		"output":  name,
		"cycle":   res.Cycles(),
		"t":       t,
		"horizon": horizon,
		"mean":    mean,
		"p05":     p05,
		"p95":     p95,
	})
}

package handlers

import (
	"hearcheck-go/internal/models"
	"hearcheck-go/internal/screening"
	"hearcheck-go/internal/services"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// historyLimit caps the runs plotted on the history chart.
const historyLimit = 50

type ResultsHandler struct {
	log     *zap.Logger
	service *services.ScreeningService
}

func NewResultsHandler(log *zap.Logger, service *services.ScreeningService) *ResultsHandler {
	return &ResultsHandler{log: log, service: service}
}

// Audiogram returns the averages stored on the participant. They are null
// until a run has completed.
func (h *ResultsHandler) Audiogram(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.service.UserInfo(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"left_avg":      user.LeftAvg,
		"right_avg":     user.RightAvg,
		"dissimilarity": user.Dissimilarity,
	})
}

// AudiogramChart returns ECharts options plotting the latest run's
// thresholds per frequency for both ears.
func (h *ResultsHandler) AudiogramChart(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.service.Audiogram(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, generateAudiogramChart(result).JSON())
}

// AudiogramHistory returns ECharts options plotting the ear averages of
// every recorded run over time.
func (h *ResultsHandler) AudiogramHistory(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	runs, err := h.service.History(c.Request.Context(), userID, historyLimit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, generateHistoryChart(runs).JSON())
}

func generateAudiogramChart(result *models.AudiogramResult) *charts.Line {
	thresholds := result.Thresholds()
	freqs := make([]int, 0, len(result.Frequencies))
	for _, f := range result.Frequencies {
		freqs = append(freqs, int(f))
	}
	// Audiograms read from low to high frequency.
	sort.Ints(freqs)

	labels := make([]string, 0, len(freqs))
	left := make([]opts.LineData, 0, len(freqs))
	right := make([]opts.LineData, 0, len(freqs))
	for _, f := range freqs {
		labels = append(labels, strconv.Itoa(f))
		l, _ := thresholds.Get(screening.EarLeft, f)
		r, _ := thresholds.Get(screening.EarRight, f)
		left = append(left, opts.LineData{Value: l})
		right = append(right, opts.LineData{Value: r})
	}

	subtitle := "Dissimilarity " + strconv.FormatFloat(result.Dissimilarity, 'f', 1, 64)
	if result.Abandoned {
		subtitle += " (incomplete run)"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Audiogram",
			Subtitle: subtitle,
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "category",
			Name: "Hz",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type: "value",
			Name: "Threshold",
			// Better hearing is drawn higher up.
			Inverse: opts.Bool(true),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(labels).
		AddSeries("Left ear", left).
		AddSeries("Right ear", right).
		SetSeriesOptions(charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	return line
}

func generateHistoryChart(runs []models.AudiogramResult) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: "Averages Over Time",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "time",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:  "value",
			Scale: opts.Bool(true),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	// Data points are [date, value] pairs.
	left := make([]opts.LineData, 0, len(runs))
	right := make([]opts.LineData, 0, len(runs))
	dissimilarity := make([]opts.LineData, 0, len(runs))
	for _, run := range runs {
		left = append(left, opts.LineData{Value: []interface{}{run.CreatedAt, run.LeftAvg}})
		right = append(right, opts.LineData{Value: []interface{}{run.CreatedAt, run.RightAvg}})
		dissimilarity = append(dissimilarity, opts.LineData{Value: []interface{}{run.CreatedAt, run.Dissimilarity}})
	}

	line.AddSeries("Left average", left).
		AddSeries("Right average", right).
		AddSeries("Dissimilarity", dissimilarity).
		SetSeriesOptions(charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	return line
}

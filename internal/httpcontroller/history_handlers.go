package httpcontroller

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

const historyRowsTemplate = "history_rows"

// historyPageData backs the history page and its rows fragment.
type historyPageData struct {
	Scans          []datastore.Prediction
	Filter         string
	SearchQuery    string
	CategoryFilter string
	Categories     []string
}

// scanPageData backs the scan detail page.
type scanPageData struct {
	Scan        *datastore.Prediction
	ChatEnabled bool
}

// dashboardPageData backs the dashboard.
type dashboardPageData struct {
	UsernameDisplay string
	Stats           *datastore.DashboardStats
	ModelReady      bool
}

// historyPage lists the user's predictions, newest first, narrowed by the
// filter, q and category query parameters.
func (s *Server) historyPage(c echo.Context) error {
	user := currentUser(c)

	data := historyPageData{
		Filter:         c.QueryParam("filter"),
		SearchQuery:    c.QueryParam("q"),
		CategoryFilter: c.QueryParam("category"),
		Categories:     s.Classifier.Categories(),
	}
	if data.Filter == "" {
		data.Filter = "all"
	}

	filter := datastore.HistoryFilter{Q: strings.TrimSpace(data.SearchQuery)}
	if data.CategoryFilter != "" && data.CategoryFilter != "all" {
		filter.Category = data.CategoryFilter
	}
	switch data.Filter {
	case datastore.RiskFilterNormal, datastore.RiskFilterMild, datastore.RiskFilterHigh:
		filter.Risk = data.Filter
	}

	scans, err := s.DS.QueryPredictions(c.Request().Context(), user.ID, filter)
	if err != nil {
		return err
	}
	data.Scans = scans

	if isAJAX(c) {
		return c.Render(http.StatusOK, historyRowsTemplate, data)
	}
	return s.render(c, http.StatusOK, s.newPage(c, "history", "Scan History", data))
}

// scanDetailPage shows one prediction owned by the current user. Missing,
// foreign and malformed ids all yield 404.
func (s *Server) scanDetailPage(c echo.Context) error {
	id, err := parseRecordID(c.Param("id"))
	if err != nil || id == 0 {
		return echo.NewHTTPError(http.StatusNotFound, msgNotFound)
	}

	scan, err := s.DS.GetPredictionForUser(c.Request().Context(), currentUser(c).ID, id)
	if err != nil {
		return err
	}

	data := scanPageData{Scan: scan, ChatEnabled: s.chatEnabled()}
	return s.render(c, http.StatusOK, s.newPage(c, "scan_detail", "Scan Details", data))
}

// dashboardPage shows the user's counters and most recent predictions.
func (s *Server) dashboardPage(c echo.Context) error {
	user := currentUser(c)

	stats, err := s.dashboardStats(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}

	data := dashboardPageData{
		UsernameDisplay: user.Username,
		Stats:           stats,
		ModelReady:      s.Classifier.Ready(),
	}
	return s.render(c, http.StatusOK, s.newPage(c, "dashboard", "Dashboard", data))
}

// dashboardStats returns cached counters for userID, loading them on a miss.
func (s *Server) dashboardStats(ctx context.Context, userID uint) (*datastore.DashboardStats, error) {
	key := statsKey(userID)
	if cached, found := s.statsCache.Get(key); found {
		if stats, ok := cached.(*datastore.DashboardStats); ok {
			return stats, nil
		}
	}

	stats, err := s.DS.DashboardStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.statsCache.Set(key, stats, cache.DefaultExpiration)

	GetLogger().Trace("dashboard stats loaded",
		logger.Uint("user_id", userID),
		logger.Int64("total_scans", stats.TotalScans))
	return stats, nil
}

func (s *Server) invalidateStats(userID uint) {
	s.statsCache.Delete(statsKey(userID))
}

func statsKey(userID uint) string {
	return "stats:" + strconv.FormatUint(uint64(userID), 10)
}

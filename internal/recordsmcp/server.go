// Package recordsmcp exposes read-only record queries as MCP tools.
package recordsmcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"pitlog/internal/analytics"
)

const dateLayout = "2006-01-02"

type ListSessionsParams struct {
	Date     string `json:"date,omitempty" mcp:"day in YYYY-MM-DD format (default: today)"`
	Mechanic string `json:"mechanic,omitempty" mcp:"only sessions recorded by this mechanic (full name)"`
}

type DailyReportParams struct {
	Date string `json:"date,omitempty" mcp:"day in YYYY-MM-DD format (default: today)"`
}

type Server struct {
	collector *analytics.Collector
	loc       *time.Location
	now       func() time.Time
	log       *zap.Logger
}

func NewServer(collector *analytics.Collector, loc *time.Location, log *zap.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{collector: collector, loc: loc, now: time.Now, log: log}
}

// Register adds the tools to an MCP server.
func (s *Server) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "Lists the kart training sessions recorded on a day, optionally for one mechanic",
	}, s.ListSessions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "daily_report",
		Description: "Summarizes the sessions and expenses recorded on a day",
	}, s.DailyReport)
}

func (s *Server) ListSessions(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ListSessionsParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	day, err := s.day(args.Date)
	if err != nil {
		return toolError(err), nil
	}
	s.log.Info("list_sessions", zap.String("date", day.Format(dateLayout)), zap.String("mechanic", args.Mechanic))

	sessions, err := s.collector.Sessions(ctx, day, args.Mechanic)
	if err != nil {
		return toolError(fmt.Errorf("failed to load sessions: %w", err)), nil
	}

	var b strings.Builder
	if len(sessions) == 0 {
		fmt.Fprintf(&b, "No sessions recorded on %s.", day.Format(dateLayout))
	} else {
		fmt.Fprintf(&b, "%d sessions on %s:\n", len(sessions), day.Format(dateLayout))
		for i, sess := range sessions {
			fmt.Fprintf(&b, "%d. %s by %s\n", i+1, sess.Label(), sess.Mechanic)
		}
	}

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: strings.TrimRight(b.String(), "\n")},
		},
		Meta: map[string]interface{}{
			"date":     day.Format(dateLayout),
			"sessions": sessions,
		},
	}, nil
}

func (s *Server) DailyReport(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[DailyReportParams]) (*mcp.CallToolResultFor[any], error) {
	day, err := s.day(params.Arguments.Date)
	if err != nil {
		return toolError(err), nil
	}
	s.log.Info("daily_report", zap.String("date", day.Format(dateLayout)))

	stats, err := s.collector.Daily(ctx, day)
	if err != nil {
		return toolError(fmt.Errorf("failed to build report: %w", err)), nil
	}

	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: stats.Summary()},
		},
		Meta: map[string]interface{}{
			"stats": stats,
		},
	}, nil
}

// day parses a YYYY-MM-DD date; empty means today.
func (s *Server) day(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return s.now().In(s.loc), nil
	}
	d, err := time.ParseInLocation(dateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return d, nil
}

func toolError(err error) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: err.Error()},
		},
	}
}

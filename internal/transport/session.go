package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/graphling/graphling/internal/broker"
	"github.com/graphling/graphling/internal/jobregistry"
	"github.com/graphling/graphling/internal/observability"
	"github.com/graphling/graphling/pkg/graph"
)

// ProjectResolver maps a project_id to the filesystem root a start_analysis
// request should walk. Rejecting an unknown project_id here, before ever
// touching the Job Registry, is what lets a Session answer
// ProjectNotFoundError without starting anything.
type ProjectResolver interface {
	Resolve(projectID string) (rootPath string, ok bool)
}

// Session drives one Conn's worth of the protocol: it validates and
// dispatches every incoming client frame, and fans every job it is asked
// to subscribe to back out as batch_update/analysis_complete frames. One
// Session multiplexes as many concurrent job subscriptions as the client
// requests over its single Conn.
type Session struct {
	conn     Conn
	registry *jobregistry.Registry
	projects ProjectResolver
	logger   *slog.Logger
	metrics  *observability.REDMetrics

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*broker.Subscription
	wg   sync.WaitGroup
}

// NewSession returns a Session ready for Serve. logger may be nil, in
// which case slog.Default() is used.
func NewSession(conn Conn, registry *jobregistry.Registry, projects ProjectResolver, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		conn:     conn,
		registry: registry,
		projects: projects,
		logger:   logger,
		subs:     make(map[string]*broker.Subscription),
	}
}

// WithMetrics attaches RED metrics to s, recording every dispatched client
// message type (start_analysis, subscribe, cancel, ping) as an "op" in
// place of the HTTP routes REDMetrics was originally built around. metrics
// may be nil, in which case recording is skipped.
func (s *Session) WithMetrics(metrics *observability.REDMetrics) *Session {
	s.metrics = metrics

	return s
}

// Serve reads frames from the Conn until it errs or closes, dispatching
// each to the matching handler. It returns the terminal read error (nil
// only if the caller's context is never meant to end the loop; in practice
// every Conn eventually returns a non-nil error on close).
func (s *Session) Serve(ctx context.Context) error {
	defer s.closeAllSubs()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}

		if verr := ValidateClientFrame(data); verr != nil {
			s.sendError("", ErrorTypeValue, verr.Error())

			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError("", ErrorTypeValue, fmt.Sprintf("malformed json: %v", err))

			continue
		}

		s.dispatch(ctx, msg)
	}
}

// dispatch routes msg to its handler and records a RED metric for the
// message type, standing in for the per-route instrumentation REDMetrics
// was originally built for: here the "op" is a client message type, not an
// HTTP path.
func (s *Session) dispatch(ctx context.Context, msg ClientMessage) {
	op := msg.Type

	var done func()
	if s.metrics != nil {
		done = s.metrics.TrackInflight(ctx, op)
	}

	start := time.Now()
	status := "ok"

	switch msg.Type {
	case TypeStartAnalysis:
		s.handleStartAnalysis(ctx, msg)
	case TypeSubscribe:
		s.handleSubscribe(ctx, msg)
	case TypeCancel:
		s.handleCancel(msg)
	case TypePing:
		s.send(ServerMessage{Type: TypePong})
	default:
		status = "error"

		s.sendError(msg.JobID, ErrorTypeValue, fmt.Sprintf("unknown message type %q", msg.Type))
	}

	if done != nil {
		done()
	}

	if s.metrics != nil {
		s.metrics.RecordRequest(ctx, op, status, time.Since(start))
	}
}

func (s *Session) handleStartAnalysis(_ context.Context, msg ClientMessage) {
	rootPath, ok := s.projects.Resolve(msg.ProjectID)
	if !ok {
		s.sendError("", ErrorTypeProjectNotFound, fmt.Sprintf("project %q not found", msg.ProjectID))

		return
	}

	jobID, _, rejoined, err := s.registry.StartAnalysis(msg.ProjectID, rootPath, msg.AnalyzerType)
	if err != nil {
		errType := ErrorTypeServer
		if errors.Is(err, jobregistry.ErrTooManyActiveJobs) {
			errType = ErrorTypeValue
		}

		s.sendError("", errType, err.Error())

		return
	}

	status := "started"
	if rejoined {
		status = "rejoined"
	}

	stats, _ := s.registry.Stats(jobID)
	dto := statsDTO(stats)

	s.send(ServerMessage{
		Type:          TypeStartAnalysisResponse,
		JobID:         jobID,
		Status:        status,
		AnalysisStats: &dto,
	})
}

func (s *Session) handleSubscribe(ctx context.Context, msg ClientMessage) {
	sub, err := s.registry.Subscribe(msg.JobID, msg.FromSequence)
	if err != nil {
		s.sendError(msg.JobID, ErrorTypeJobNotFound, err.Error())

		return
	}

	lastSeq, err := s.registry.LastCommittedSequence(msg.JobID)
	if err != nil {
		sub.Close()
		s.sendError(msg.JobID, ErrorTypeJobNotFound, err.Error())

		return
	}

	s.mu.Lock()
	if old, ok := s.subs[msg.JobID]; ok {
		old.Close()
	}

	s.subs[msg.JobID] = sub
	s.mu.Unlock()

	s.send(ServerMessage{
		Type:                  TypeSubscribeResponse,
		JobID:                 msg.JobID,
		LastCommittedSequence: lastSeq,
	})

	s.wg.Add(1)

	go s.pumpSubscription(ctx, msg.JobID, sub)
}

func (s *Session) handleCancel(msg ClientMessage) {
	if err := s.registry.Cancel(msg.JobID); err != nil {
		s.sendError(msg.JobID, ErrorTypeJobNotFound, err.Error())

		return
	}

	stats, _ := s.registry.Stats(msg.JobID)
	dto := statsDTO(stats)

	s.send(ServerMessage{
		Type:          TypeStatusUpdate,
		JobID:         msg.JobID,
		Status:        string(graph.JobCancelled),
		AnalysisStats: &dto,
	})
}

// pumpSubscription forwards sub's batches to the client as batch_update
// frames until the job's terminal batch arrives (which also produces
// analysis_complete), the subscription is dropped for being slow, or ctx
// ends. A resync control signal is reported as a ResyncRequired error and
// forwarding continues.
func (s *Session) pumpSubscription(ctx context.Context, jobID string, sub *broker.Subscription) {
	defer s.wg.Done()

	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				if err := sub.Err(); err != nil {
					s.sendError(jobID, ErrorTypeSlowConsumer, err.Error())
				}

				return
			}

			if msg.Control == broker.ControlResyncRequired {
				s.sendError(jobID, ErrorTypeResyncRequired, "subscriber fell behind the replay buffer, re-fetch the graph snapshot")

				continue
			}

			if msg.Batch == nil {
				continue
			}

			stats, _ := s.registry.Stats(jobID)
			dto := statsDTO(stats)

			s.send(ServerMessage{
				Type:          TypeBatchUpdate,
				JobID:         jobID,
				Sequence:      msg.Batch.Sequence,
				Nodes:         msg.Batch.Nodes,
				Edges:         msg.Batch.Edges,
				AnalysisStats: &dto,
			})

			if msg.Batch.Final {
				s.send(ServerMessage{Type: TypeAnalysisComplete, JobID: jobID, Statistics: &dto})

				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) send(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal server message", "type", msg.Type, "error", err)

		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteMessage(TextMessage, data); err != nil {
		s.logger.Debug("write failed, connection likely closed", "error", err)
	}
}

func (s *Session) sendError(jobID, errType, message string) {
	s.send(ServerMessage{Type: TypeError, JobID: jobID, ErrorType: errType, Message: message})
}

func (s *Session) closeAllSubs() {
	s.mu.Lock()
	subs := make([]*broker.Subscription, 0, len(s.subs))

	for _, sub := range s.subs {
		subs = append(subs, sub)
	}

	s.subs = make(map[string]*broker.Subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	s.wg.Wait()
}

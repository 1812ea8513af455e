package httpapi

import (
	"time"

	"llmsock/internal/model"
	"llmsock/internal/sched"
	"llmsock/internal/server"
	"llmsock/pkg/types"
)

// Status assembles /status and /readyz answers from the running server.
type Status struct {
	Model   model.Info
	Server  *server.Server
	Sched   *sched.Scheduler
	Started time.Time
	Now     func() time.Time
}

var _ Service = (*Status)(nil)

func (s *Status) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Status) Ready() bool { return s.Server != nil && s.Server.Addr() != nil }

func (s *Status) Status() types.StatusResponse {
	now := s.now()
	resp := types.StatusResponse{
		Model: types.ModelStatus{
			Path:        s.Model.Path,
			Arch:        s.Model.Arch,
			Backend:     s.Model.Backend,
			FileSize:    s.Model.FileSize,
			TensorCount: s.Model.TensorCount,
			ContextSize: s.Model.ContextSize,
		},
		UptimeSeconds:  int64(now.Sub(s.Started).Seconds()),
		ServerTimeUnix: now.Unix(),
		Connections:    []types.ConnectionStatus{},
	}
	if s.Sched != nil {
		resp.SchedulerWidth = s.Sched.Width()
		resp.SchedulerTasks = s.Sched.Active()
	}
	if s.Server == nil {
		return resp
	}
	if a := s.Server.Addr(); a != nil {
		resp.ListenAddr = a.String()
	}
	reg := s.Server.Registry()
	resp.ConnectionsTotal = reg.Accepted()
	resp.RequestsTotal = reg.Served()
	for _, c := range reg.Snapshot() {
		resp.Connections = append(resp.Connections, types.ConnectionStatus{
			ID:        c.ID,
			Remote:    c.Remote,
			SinceUnix: c.Since.Unix(),
			Requests:  c.Requests,
		})
	}
	return resp
}

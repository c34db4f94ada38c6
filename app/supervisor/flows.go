package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/offlinebay/offlinebay/app/job"
	"github.com/offlinebay/offlinebay/app/notify"
	"github.com/offlinebay/offlinebay/app/prefs"
	"github.com/offlinebay/offlinebay/app/remote"
)

// dump update modes
const (
	ModeAuto   = "auto"   // check, update if newer
	ModeNotify = "notify" // check, tell the UI if newer
	ModeCheck  = "check"  // like notify, also report "up to date"
	ModeUser   = "user"   // update right away
	ModeTray   = "tray"   // check, update if newer, otherwise report "up to date"
)

// onSaveSettings merges settings bundle and persists the touched categories
func (s *Supervisor) onSaveSettings(ctx context.Context, cmd Command) {
	bundle := cmd.Map(0)
	if len(bundle) == 0 {
		log.Printf("[WARN] empty settings bundle")
		return
	}
	if s.Phase() >= PhaseFlushing {
		log.Printf("[WARN] settings saved after flush, ignored")
		return
	}
	touched := map[string]bool{}
	for key, v := range bundle {
		s.Prefs.Set(key, v)
		category, _ := prefs.Split(key)
		touched[category] = true
	}
	fields := map[string]map[string]any{}
	for category := range touched {
		fields[category] = s.Prefs.Category(category)
	}

	s.async(ctx, func(ctx context.Context) func() {
		var errs []error
		for category, f := range fields {
			if err := s.Store.Upsert(ctx, category, f); err != nil {
				errs = append(errs, fmt.Errorf("can't save %s settings: %w", category, err))
			}
		}
		err := errors.Join(errs...)
		return func() {
			if err != nil {
				log.Printf("[WARN] %v", err)
				s.notify(ctx, "Failed to save settings", notify.SeverityDanger)
				return
			}
			s.notify(ctx, "Settings saved", notify.SeveritySuccess)
		}
	})
}

// onTrackersUpdate fetches tracker list from the given or configured url and stores it
func (s *Supervisor) onTrackersUpdate(ctx context.Context, cmd Command) {
	endpoint := cmd.String(0)
	if endpoint == "" {
		endpoint = s.Prefs.String(prefs.KeyTrackersURL)
	}
	if endpoint == "" || s.Remote == nil {
		s.trackersFailed(ctx, remote.ErrEndpointMissing)
		return
	}

	s.async(ctx, func(ctx context.Context) func() {
		list, err := s.Remote.Trackers(ctx, endpoint)
		return func() {
			if err != nil {
				s.trackersFailed(ctx, err)
				return
			}
			s.trackersUpdated(ctx, list)
		}
	})
}

func (s *Supervisor) trackersUpdated(ctx context.Context, list []string) {
	log.Printf("[INFO] trackers updated, %d trackers", len(list))
	stored := make([]any, len(list))
	for i, t := range list {
		stored[i] = t
	}
	s.Prefs.Set(prefs.KeyTrackersList, stored)
	fields := s.Prefs.Category(prefs.CategoryTrackers)
	s.async(ctx, func(ctx context.Context) func() {
		if err := s.Store.Upsert(ctx, prefs.CategoryTrackers, fields); err != nil {
			log.Printf("[WARN] can't store trackers, %v", err)
		}
		return nil
	})
	s.UI.Send(EvtTrackersUpdated, list)
	s.notify(ctx, "Trackers updated", notify.SeveritySuccess)
}

func (s *Supervisor) trackersFailed(ctx context.Context, err error) {
	log.Printf("[WARN] trackers update failed, %v", err)
	s.UI.Send(EvtTrackersFailed, remote.FailureType(err))
	s.notify(ctx, "Failed to update trackers", notify.SeverityDanger)
}

// onDumpUpdate checks dump freshness and runs update worker depending on mode
func (s *Supervisor) onDumpUpdate(ctx context.Context, cmd Command) {
	mode, endpoint := cmd.String(0), cmd.String(1)
	if endpoint == "" {
		endpoint = s.Prefs.String(prefs.KeyUpdateURL)
	}
	switch mode {
	case ModeAuto, ModeNotify, ModeCheck, ModeUser, ModeTray:
	default:
		log.Printf("[WARN] unknown dump update mode %q", mode)
		return
	}
	if endpoint == "" {
		s.dumpUpdateFailed(ctx, remote.ErrEndpointMissing)
		return
	}
	if mode == ModeUser {
		s.request(ctx, job.KindUpdate, []string{endpoint})
		return
	}
	if s.Remote == nil {
		s.dumpUpdateFailed(ctx, remote.ErrEndpointMissing)
		return
	}

	since := time.Unix(s.Prefs.Int(prefs.KeyUpdateLast), 0)
	s.async(ctx, func(ctx context.Context) func() {
		info, err := s.Remote.CheckDump(ctx, endpoint, since)
		return func() {
			if err != nil {
				s.dumpUpdateFailed(ctx, err)
				return
			}
			s.onDumpChecked(ctx, mode, info)
		}
	})
}

func (s *Supervisor) onDumpChecked(ctx context.Context, mode string, info remote.DumpInfo) {
	log.Printf("[DEBUG] dump %s checked, modified %s, newer %v", info.URL, info.LastModified, info.Newer)
	if !info.Newer {
		if mode == ModeCheck || mode == ModeTray {
			s.notify(ctx, "Dump is up to date", notify.SeverityInfo)
		}
		return
	}
	switch mode {
	case ModeAuto, ModeTray:
		s.request(ctx, job.KindUpdate, []string{info.URL, fmt.Sprintf("%d", info.LastModified.Unix())})
	case ModeNotify, ModeCheck:
		s.UI.Send(EvtDumpUpdateAvailable, map[string]any{
			"url": info.URL, "last_modified": info.LastModified.Unix(), "size": info.Size,
		})
	}
}

func (s *Supervisor) dumpUpdateFailed(ctx context.Context, err error) {
	failure := remote.FailureType(err)
	log.Printf("[WARN] dump update check failed, %v", err)
	s.UI.Send(EvtDumpUpdateFailed, failure)
	s.notify(ctx, fmt.Sprintf("Dump update check failed (%s)", failure), notify.SeverityDanger)
}

// onUpdateTick maps update policy to a dump update request
func (s *Supervisor) onUpdateTick(ctx context.Context, _ Command) {
	if s.Phase() != PhaseActive {
		return
	}
	if s.Prefs.String(prefs.KeyUpdateURL) == "" {
		log.Printf("[DEBUG] update tick skipped, no update url")
		return
	}
	switch policy := s.Prefs.String(prefs.KeyUpdatePolicy); policy {
	case ModeAuto:
		s.onDumpUpdate(ctx, Command{Name: CmdDumpUpdate, Args: []any{ModeAuto}})
	case ModeNotify:
		s.onDumpUpdate(ctx, Command{Name: CmdDumpUpdate, Args: []any{ModeNotify}})
	default:
		log.Printf("[DEBUG] update tick skipped, policy %q", policy)
	}
}

package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"finboard/internal/amqp"
	"finboard/internal/api"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/state"
	"finboard/internal/storage"
)

// Start bootstraps the session. It asks the backend whether a password
// exists, picks the login or create screen, and enters the app directly
// when a stored token is available. A rejected stored token ends on the
// login screen without an error.
func (d *Dashboard) Start(ctx context.Context) error {
	token, _, err := d.prefs.Get(ctx, storage.KeyAuthToken)
	if err != nil {
		d.logger.WarnContext(ctx, "Failed to read stored token",
			log.FieldErrorType, log.ErrorTypeStorage,
			log.FieldError, err.Error())
		token = ""
	}

	st, err := d.backend.AuthStatus(ctx)
	if err != nil {
		d.mu.Lock()
		d.app.Auth.ScreenVisible = true
		d.app.Auth.Mode = state.AuthLogin
		d.mu.Unlock()
		d.sink.Report(ctx, log.OpStartup, err)
		return nil
	}

	d.mu.Lock()
	d.app.Auth.PasswordSet = st.PasswordSet
	d.app.Auth.ScreenVisible = true
	if st.PasswordSet {
		d.app.Auth.Mode = state.AuthLogin
	} else {
		d.app.Auth.Mode = state.AuthCreate
	}
	d.mu.Unlock()

	if !st.PasswordSet || token == "" {
		return nil
	}
	d.backend.SetToken(token)
	if err := d.StartApp(ctx); err != nil && !errors.Is(err, api.ErrUnauthorized) {
		return err
	}
	return nil
}

// Login exchanges the password for a token, stores it and enters the app.
// A wrong password returns api.ErrInvalidPassword and leaves the auth
// screen up.
func (d *Dashboard) Login(ctx context.Context, password string) error {
	token, err := d.backend.Login(ctx, password)
	if err != nil {
		if !errors.Is(err, api.ErrInvalidPassword) {
			d.sink.Report(ctx, log.OpLogin, err)
		}
		return err
	}
	return d.enter(ctx, token)
}

// SetPassword creates the first password and enters the app.
func (d *Dashboard) SetPassword(ctx context.Context, password string) error {
	token, err := d.backend.SetPassword(ctx, password)
	if err != nil {
		if !errors.Is(err, api.ErrPasswordRejected) {
			d.sink.Report(ctx, log.OpLogin, err)
		}
		return err
	}
	d.mu.Lock()
	d.app.Auth.PasswordSet = true
	d.mu.Unlock()
	return d.enter(ctx, token)
}

func (d *Dashboard) enter(ctx context.Context, token string) error {
	if err := d.prefs.Set(ctx, storage.KeyAuthToken, token); err != nil {
		d.logger.WarnContext(ctx, "Failed to persist token",
			log.FieldErrorType, log.ErrorTypeStorage,
			log.FieldError, err.Error())
	}
	return d.StartApp(ctx)
}

// StartApp opens the session once: it hides the auth screen, sets the
// history defaults, restores goals and profile, and runs the first
// refresh. Later calls are no-ops until the session is reset.
func (d *Dashboard) StartApp(ctx context.Context) error {
	d.mu.Lock()
	if d.app.Auth.Initialized {
		d.mu.Unlock()
		return nil
	}
	d.app.Auth.Initialized = true
	d.app.Auth.ScreenVisible = false
	d.app.History.Query = core.OperationsQuery{
		Period: core.DaysBack(d.now(), defaultHistoryDays),
		Type:   "all",
		Limit:  d.historyLimit,
	}
	for _, t := range core.Tabs {
		d.app.Tabs[t].Period = core.Period{}
	}
	d.app.SyncInputs()
	d.mu.Unlock()

	d.restore(ctx)
	d.logger.InfoContext(ctx, "Session started", log.FieldOperation, log.OpStartup)
	return d.Refresh(ctx)
}

// restore loads goals and profile from the persisted preferences.
func (d *Dashboard) restore(ctx context.Context) {
	goals, _, err := d.prefs.Get(ctx, storage.KeyGoals)
	if err != nil {
		d.logger.WarnContext(ctx, "Failed to read goals", log.FieldError, err.Error())
	}
	var profile core.Profile
	raw, ok, err := d.prefs.Get(ctx, storage.KeyProfile)
	if err != nil {
		d.logger.WarnContext(ctx, "Failed to read profile", log.FieldError, err.Error())
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			d.logger.WarnContext(ctx, "Stored profile is not valid JSON", log.FieldError, err.Error())
		}
	}

	d.mu.Lock()
	d.app.SetGoals(goals)
	d.app.Profile = profile
	d.mu.Unlock()
}

// handleUnauthorized is the session reset flow. The API client has already
// dropped the in-memory credential.
func (d *Dashboard) handleUnauthorized(ctx context.Context) {
	if err := d.prefs.Delete(ctx, storage.KeyAuthToken); err != nil {
		d.logger.WarnContext(ctx, "Failed to clear stored token",
			log.FieldErrorType, log.ErrorTypeStorage,
			log.FieldError, err.Error())
	}
	d.mu.Lock()
	d.app.ResetSession()
	d.mu.Unlock()
	d.publish(ctx, amqp.NewEvent(amqp.EventUnauthorized))
}

// SaveProfile stores the profile locally.
func (d *Dashboard) SaveProfile(ctx context.Context, p core.Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := d.prefs.Set(ctx, storage.KeyProfile, string(raw)); err != nil {
		return d.fail(ctx, "save_profile", fmt.Errorf("save profile: %w", err))
	}
	d.mu.Lock()
	d.app.Profile = p
	d.app.Toast = "Профиль сохранён локально"
	d.mu.Unlock()
	return nil
}

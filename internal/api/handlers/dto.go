package handlers

import (
	"time"

	"github.com/bigkaa/memberbridge/internal/domain/model"
)

// --- Запросы ---

type loginRequest struct {
	NationalID string `json:"national_id"`
	Password   string `json:"password"`
}

type registerRequest struct {
	NationalID           string `json:"national_id"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type changePasswordRequest struct {
	CurrentPassword         string `json:"current_password"`
	NewPassword             string `json:"new_password"`
	NewPasswordConfirmation string `json:"new_password_confirmation"`
}

// --- Ответы ---

type accountResponse struct {
	ID                 string     `json:"id"`
	NationalID         string     `json:"national_id"`
	Name               string     `json:"name"`
	Email              *string    `json:"email"`
	ExternalID         *string    `json:"external_id"`
	Barcode            *string    `json:"barcode"`
	GivenName          *string    `json:"given_name"`
	Surname            *string    `json:"surname"`
	Nationality        *string    `json:"nationality"`
	BirthDate          *string    `json:"birth_date"`
	Address            *string    `json:"address"`
	Locality           *string    `json:"locality"`
	Phone              *string    `json:"phone"`
	Mobile             *string    `json:"mobile"`
	MembershipCategory *string    `json:"membership_category"`
	MembershipStatus   *string    `json:"membership_status"`
	AvatarPath         *string    `json:"avatar_path"`
	LastRemoteSyncAt   *time.Time `json:"last_remote_sync_at"`
	IsAdmin            bool       `json:"is_admin"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type sessionResponse struct {
	Token       string          `json:"token"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Account     accountResponse `json:"account"`
	Source      string          `json:"source"`
	RosterFound bool            `json:"roster_found"`
}

type poolTokenResponse struct {
	PoolToken string `json:"pool_token"`
	ExpiresIn int64  `json:"expires_in"`
}

type rosterRecordResponse struct {
	NationalID       string             `json:"national_id"`
	ExternalID       *string            `json:"external_id"`
	FullName         *string            `json:"full_name"`
	Barcode          *string            `json:"barcode"`
	Balance          *float64           `json:"balance"`
	RiskLevel        *int               `json:"risk_level"`
	LastUnpaidPeriod *int               `json:"last_unpaid_period"`
	FullAccess       *int               `json:"full_access"`
	ControlFlags     model.ControlFlags `json:"control_flags"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

type rosterSyncResponse struct {
	Fetched     int       `json:"fetched"`
	Skipped     int       `json:"skipped"`
	Added       int       `json:"added"`
	Updated     int       `json:"updated"`
	Unchanged   int       `json:"unchanged"`
	BatchSize   int       `json:"batch_size"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

type rosterStatusResponse struct {
	LastSyncAt   *time.Time `json:"last_sync_at"`
	LastFetched  int        `json:"last_fetched"`
	LastUpserted int        `json:"last_upserted"`
	RosterCount  int        `json:"roster_count"`
}

// --- Маппинг ---

// optional возвращает nil для пустой строки.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mapAccount(acc *model.Account) accountResponse {
	resp := accountResponse{
		ID:                 acc.ID,
		NationalID:         acc.NationalID,
		Name:               acc.DisplayName,
		Email:              optional(acc.Email),
		ExternalID:         optional(acc.ExternalID),
		Barcode:            optional(acc.Barcode),
		GivenName:          optional(acc.GivenName),
		Surname:            optional(acc.Surname),
		Nationality:        optional(acc.Nationality),
		Address:            optional(acc.Address),
		Locality:           optional(acc.Locality),
		Phone:              optional(acc.Phone),
		Mobile:             optional(acc.Mobile),
		MembershipCategory: optional(acc.MembershipCategory),
		MembershipStatus:   optional(acc.MembershipStatus),
		AvatarPath:         optional(acc.AvatarPath),
		LastRemoteSyncAt:   acc.LastRemoteSyncAt,
		IsAdmin:            acc.IsAdmin,
		CreatedAt:          acc.CreatedAt,
		UpdatedAt:          acc.UpdatedAt,
	}
	if acc.BirthDate != nil {
		resp.BirthDate = optional(acc.BirthDate.Format(time.DateOnly))
	}
	return resp
}

func mapRosterRecord(rec *model.RosterRecord) rosterRecordResponse {
	return rosterRecordResponse{
		NationalID:       rec.NationalID,
		ExternalID:       optional(rec.ExternalID),
		FullName:         optional(rec.FullName),
		Barcode:          optional(rec.Barcode),
		Balance:          rec.Balance,
		RiskLevel:        rec.RiskLevel,
		LastUnpaidPeriod: rec.LastUnpaidPeriod,
		FullAccess:       rec.FullAccess,
		ControlFlags:     rec.ControlFlags,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func mapSyncResult(res *model.RosterSyncResult) rosterSyncResponse {
	return rosterSyncResponse{
		Fetched:     res.Fetched,
		Skipped:     res.Skipped,
		Added:       res.Added,
		Updated:     res.Updated,
		Unchanged:   res.Unchanged,
		BatchSize:   res.BatchSize,
		StartedAt:   res.StartedAt,
		CompletedAt: res.CompletedAt,
	}
}

func mapRosterStatus(st *model.RosterStatus) rosterStatusResponse {
	resp := rosterStatusResponse{RosterCount: st.RosterCount}
	if st.State != nil {
		resp.LastSyncAt = st.State.LastRosterSyncAt
		resp.LastFetched = st.State.LastRosterSyncFetched
		resp.LastUpserted = st.State.LastRosterSyncUpserted
	}
	return resp
}

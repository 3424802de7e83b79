// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限種別を表す。
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid は定義済みのロールかどうかを返す。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// SessionStatus はユーザーのセッション状態を表す。
type SessionStatus string

const (
	StatusOnline      SessionStatus = "ONLINE"
	StatusOffline     SessionStatus = "OFFLINE"
	StatusBlocked     SessionStatus = "BLOCKED"
	StatusSoftDeleted SessionStatus = "SOFT_DELETED"
)

// ImageRef は外部オブジェクトストレージ上の画像参照を表す。
// URLとPublicIDが共に空の場合はプレースホルダ（画像なし）を意味する。
type ImageRef struct {
	URL      string `json:"secure_url"`
	PublicID string `json:"public_id"`
}

// IsEmpty は画像が未設定かどうかを返す。
func (i ImageRef) IsEmpty() bool {
	return i.PublicID == ""
}

// OTP はメール確認用のワンタイムパスワードを表す。
// ユーザーごとに1スロットのみ保持し、更新時は丸ごと置き換える。
type OTP struct {
	Code      string
	ExpiresAt time.Time
}

// Expired は指定時刻時点で有効期限を過ぎているかを返す。
func (o OTP) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// User は登録済みのユーザー（認証主体）を表す。
// PasswordHashとEncryptedPhoneは外部に直接シリアライズしない。
type User struct {
	ID             int64
	Username       string
	Email          string
	PasswordHash   string
	EncryptedPhone string
	ProfileImage   ImageRef
	EmailConfirmed bool
	Role           Role
	Status         SessionStatus
	OTP            *OTP
	IsDeleted      bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TokenRecord はトークン台帳の1レコードを表す。
// トークン文字列そのものではなくSHA-256ダイジェストを保持する。
type TokenRecord struct {
	ID          int64
	TokenDigest string
	UserID      int64
	Valid       bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Page はページング指定を表す。PageNumberは1始まり。
type Page struct {
	PageNumber int
	PerPage    int
}

// Offset はSQLのOFFSET値を返す。
func (p Page) Offset() int {
	return p.PerPage * (p.PageNumber - 1)
}

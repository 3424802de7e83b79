package auth

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/estatehub/internal/model"
	"github.com/hitoshi/estatehub/internal/repository"
	"github.com/hitoshi/estatehub/internal/security"
	"github.com/hitoshi/estatehub/internal/storage"
	"github.com/hitoshi/estatehub/internal/token"
)

// --- モック定義 ---

// memoryUserRepo はメモリ上でユーザーを保持するUserRepository。
// 各fnフィールドを設定するとその操作の挙動を差し替えられる。
type memoryUserRepo struct {
	users  map[int64]*model.User
	nextID int64

	createFn       func(ctx context.Context, user *model.User) error
	updateStatusFn func(ctx context.Context, id int64, status model.SessionStatus) error
	findByEmailFn  func(ctx context.Context, email string) (*model.User, error)
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: map[int64]*model.User{}}
}

func (m *memoryUserRepo) add(u *model.User) *model.User {
	m.nextID++
	u.ID = m.nextID
	u.Version = 1
	m.users[u.ID] = u
	return u
}

func (m *memoryUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, nil
}

func (m *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memoryUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memoryUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	clone := *user
	m.add(&clone)
	user.ID = clone.ID
	user.Version = clone.Version
	return nil
}

func (m *memoryUserRepo) UpdateStatus(ctx context.Context, id int64, status model.SessionStatus) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Status = status
	return nil
}

func (m *memoryUserRepo) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memoryUserRepo) UpdateVerification(_ context.Context, user *model.User) error {
	u, ok := m.users[user.ID]
	if !ok || u.EmailConfirmed {
		return repository.ErrAlreadyConfirmed
	}
	u.EmailConfirmed = user.EmailConfirmed
	u.OTP = user.OTP
	return nil
}

func (m *memoryUserRepo) UpdateProfile(_ context.Context, user *model.User) error {
	u, ok := m.users[user.ID]
	if !ok || u.Version != user.Version {
		return repository.ErrVersionConflict
	}
	u.Username = user.Username
	u.EncryptedPhone = user.EncryptedPhone
	u.ProfileImage = user.ProfileImage
	u.Version++
	user.Version = u.Version
	return nil
}

func (m *memoryUserRepo) DeleteByID(_ context.Context, id int64) error {
	delete(m.users, id)
	return nil
}

type fakeOTPs struct {
	codes []string
	now   time.Time
	err   error
}

func (f *fakeOTPs) Generate() (model.OTP, error) {
	if f.err != nil {
		return model.OTP{}, f.err
	}
	code := "CODE000000"
	if len(f.codes) > 0 {
		code, f.codes = f.codes[0], f.codes[1:]
	}
	return model.OTP{Code: code, ExpiresAt: f.now.Add(10 * time.Minute)}, nil
}

func (f *fakeOTPs) TTL() time.Duration { return 10 * time.Minute }

type fakeLedger struct {
	recorded    map[string]int64
	invalidated []string
	recordErr   error
}

func (f *fakeLedger) Record(_ context.Context, tok string, userID int64) (int64, error) {
	if f.recordErr != nil {
		return 0, f.recordErr
	}
	if f.recorded == nil {
		f.recorded = map[string]int64{}
	}
	f.recorded[tok] = userID
	return int64(len(f.recorded)), nil
}

func (f *fakeLedger) Invalidate(_ context.Context, tok string) error {
	f.invalidated = append(f.invalidated, tok)
	return nil
}

type fakeImages struct {
	uploadErr error
	uploads   []string
	deletes   []string
}

func (f *fakeImages) Upload(_ context.Context, folder string, _ []byte) (model.ImageRef, error) {
	if f.uploadErr != nil {
		return model.ImageRef{}, f.uploadErr
	}
	id := folder + "/avatar.jpg"
	f.uploads = append(f.uploads, id)
	return model.ImageRef{URL: "https://cdn.example.com/" + id, PublicID: id}, nil
}

func (f *fakeImages) Delete(_ context.Context, publicID string) error {
	f.deletes = append(f.deletes, publicID)
	return nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (f *fakeMailer) SendOTP(_ context.Context, to, code string, _ int) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to+":"+code)
	return nil
}

type testEnv struct {
	svc    *Service
	users  *memoryUserRepo
	hasher *security.PasswordHasher
	cipher *security.FieldCipher
	issuer *token.Issuer
	otps   *fakeOTPs
	ledger *fakeLedger
	images *fakeImages
	mailer *fakeMailer
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	cipher, err := security.NewFieldCipher(security.FieldCipherConfig{Key: bytes.Repeat([]byte{7}, 32)})
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	issuer, err := token.NewIssuer(token.IssuerConfig{Secret: "test-secret", TTL: 2 * time.Hour})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}

	env := &testEnv{
		users:  newMemoryUserRepo(),
		hasher: security.NewPasswordHasher(4),
		cipher: cipher,
		issuer: issuer,
		otps:   &fakeOTPs{now: now},
		ledger: &fakeLedger{},
		images: &fakeImages{},
		mailer: &fakeMailer{},
		now:    now,
	}
	env.svc = NewService(Deps{
		Users:  env.users,
		Hasher: env.hasher,
		Cipher: env.cipher,
		OTPs:   env.otps,
		Issuer: env.issuer,
		Ledger: env.ledger,
		Images: env.images,
		Mailer: env.mailer,
	}, ServiceConfig{ImageLimits: storage.ImageLimits{MaxBytes: 1 << 20, MaxDimension: 100}})
	env.svc.now = func() time.Time { return now }
	return env
}

// seedUser はパスワードをハッシュ化したユーザーを登録する。
func (e *testEnv) seedUser(t *testing.T, email, password string, confirmed bool) *model.User {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	return e.users.add(&model.User{
		Username:       strings.Split(email, "@")[0] + "_user",
		Email:          email,
		PasswordHash:   hash,
		EmailConfirmed: confirmed,
		Role:           model.RoleUser,
		Status:         model.StatusOffline,
	})
}

func onePixelPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func aliceInput(t *testing.T) SignUpInput {
	return SignUpInput{
		Username:     "alice_01",
		Email:        "a@x.com",
		Password:     "p@ss1",
		Phone:        "5551234567",
		ProfileImage: onePixelPNG(t),
	}
}

func assertKind(t *testing.T, err error, want model.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %d, got nil", want)
	}
	if got := model.KindOf(err); got != want {
		t.Fatalf("KindOf(%v) = %d, want %d", err, got, want)
	}
}

// --- SignUp ---

func TestSignUp_ThenConfirmEmail(t *testing.T) {
	env := newTestEnv(t)
	env.otps.codes = []string{"ABCDE12345", "NEXT000000"}

	result, err := env.svc.SignUp(context.Background(), aliceInput(t))
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	if result.User.ProfileImage.URL == "" || result.User.ProfileImage.PublicID == "" {
		t.Errorf("expected avatar reference, got %+v", result.User.ProfileImage)
	}
	if result.User.EmailConfirmed {
		t.Error("EmailConfirmed should be false right after signup")
	}
	if !result.EmailDelivered {
		t.Error("EmailDelivered should be true when mail succeeds")
	}
	if len(env.mailer.sent) != 1 || env.mailer.sent[0] != "a@x.com:ABCDE12345" {
		t.Errorf("mail sent = %v", env.mailer.sent)
	}

	_, err = env.svc.ConfirmEmail(context.Background(), "a@x.com", "WRONG00000")
	assertKind(t, err, model.KindBadRequest)

	confirmed, err := env.svc.ConfirmEmail(context.Background(), "a@x.com", "ABCDE12345")
	if err != nil {
		t.Fatalf("ConfirmEmail returned error: %v", err)
	}
	if !confirmed.EmailConfirmed {
		t.Error("EmailConfirmed should be true after confirmation")
	}
	if confirmed.OTP == nil || confirmed.OTP.Code != "NEXT000000" {
		t.Errorf("OTP should be replaced, got %+v", confirmed.OTP)
	}
}

func TestSignUp_StoredFields(t *testing.T) {
	env := newTestEnv(t)
	in := aliceInput(t)
	in.Email = "  A@X.com "

	result, err := env.svc.SignUp(context.Background(), in)
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}

	stored := env.users.users[result.User.ID]
	if stored.Email != "a@x.com" {
		t.Errorf("Email = %q, want lowercase", stored.Email)
	}
	if stored.PasswordHash == "p@ss1" || !env.hasher.Verify("p@ss1", stored.PasswordHash) {
		t.Error("password should be stored as a bcrypt hash")
	}
	if strings.Contains(stored.EncryptedPhone, "5551234567") {
		t.Error("phone should be stored encrypted")
	}
	phone, err := env.cipher.Decrypt(stored.EncryptedPhone)
	if err != nil {
		t.Fatalf("failed to decrypt phone: %v", err)
	}
	if phone != "+15551234567" {
		t.Errorf("phone = %q, want E.164", phone)
	}
	if stored.Role != model.RoleUser || stored.Status != model.StatusOffline {
		t.Errorf("Role/Status = %s/%s", stored.Role, stored.Status)
	}
}

func TestSignUp_DuplicateEmailIsConflict(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "a@x.com", "secret", false)

	_, err := env.svc.SignUp(context.Background(), aliceInput(t))
	assertKind(t, err, model.KindConflict)
	if len(env.images.uploads) != 0 {
		t.Error("no image should be uploaded for a duplicate email")
	}
}

func TestSignUp_DuplicateUsernameIsConflict(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "other@x.com", "secret", false)
	u.Username = "alice_01"

	_, err := env.svc.SignUp(context.Background(), aliceInput(t))
	assertKind(t, err, model.KindConflict)
	if !errors.Is(err, model.NewUsernameTakenError("")) {
		t.Errorf("expected USERNAME_TAKEN, got %v", err)
	}
}

func TestSignUp_ConcurrentUniqueViolationDeletesImage(t *testing.T) {
	env := newTestEnv(t)
	env.users.createFn = func(_ context.Context, _ *model.User) error {
		return &repository.DuplicateError{Constraint: repository.ConstraintUserEmail}
	}

	_, err := env.svc.SignUp(context.Background(), aliceInput(t))
	if !errors.Is(err, model.NewEmailTakenError()) {
		t.Fatalf("expected EMAIL_TAKEN, got %v", err)
	}
	if len(env.images.deletes) != 1 {
		t.Errorf("uploaded avatar should be deleted, deletes = %v", env.images.deletes)
	}
}

func TestSignUp_UploadFailureAbortsRegistration(t *testing.T) {
	env := newTestEnv(t)
	env.images.uploadErr = errors.New("storage down")

	_, err := env.svc.SignUp(context.Background(), aliceInput(t))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(env.users.users) != 0 {
		t.Error("no user should be persisted when upload fails")
	}
}

func TestSignUp_NonImageIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	in := aliceInput(t)
	in.ProfileImage = []byte("not an image")

	_, err := env.svc.SignUp(context.Background(), in)
	assertKind(t, err, model.KindBadRequest)
	if len(env.users.users) != 0 {
		t.Error("no user should be persisted")
	}
}

func TestSignUp_NoImageUsesPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	in := aliceInput(t)
	in.ProfileImage = nil

	result, err := env.svc.SignUp(context.Background(), in)
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	if !result.User.ProfileImage.IsEmpty() {
		t.Errorf("expected empty avatar, got %+v", result.User.ProfileImage)
	}
}

func TestSignUp_MailFailureStillRegisters(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errors.New("smtp down")

	result, err := env.svc.SignUp(context.Background(), aliceInput(t))
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	if result.EmailDelivered {
		t.Error("EmailDelivered should be false")
	}
	if len(env.users.users) != 1 {
		t.Error("user should be persisted despite mail failure")
	}
}

func TestSignUp_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(in *SignUpInput)
	}{
		{"メール形式不正", func(in *SignUpInput) { in.Email = "not-an-email" }},
		{"ユーザー名が短い", func(in *SignUpInput) { in.Username = "bob" }},
		{"パスワード未入力", func(in *SignUpInput) { in.Password = "" }},
		{"パスワードが72バイト超過", func(in *SignUpInput) { in.Password = strings.Repeat("é", 40) }},
		{"電話番号が短い", func(in *SignUpInput) { in.Phone = "123" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := aliceInput(t)
			tt.modify(&in)

			_, err := env.svc.SignUp(context.Background(), in)
			assertKind(t, err, model.KindBadRequest)
		})
	}
}

// --- ConfirmEmail / ResendOTP ---

func TestConfirmEmail_Errors(t *testing.T) {
	t.Run("未登録メールはNotFound", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.ConfirmEmail(context.Background(), "none@x.com", "X")
		assertKind(t, err, model.KindNotFound)
	})

	t.Run("確認済みはConflict", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser(t, "a@x.com", "secret", true)
		_, err := env.svc.ConfirmEmail(context.Background(), "a@x.com", "X")
		assertKind(t, err, model.KindConflict)
	})

	t.Run("OTPなしはBadRequest", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser(t, "a@x.com", "secret", false)
		_, err := env.svc.ConfirmEmail(context.Background(), "a@x.com", "X")
		assertKind(t, err, model.KindBadRequest)
	})

	t.Run("一致しても期限切れはBadRequest", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.seedUser(t, "a@x.com", "secret", false)
		u.OTP = &model.OTP{Code: "ABC", ExpiresAt: env.now.Add(-time.Second)}

		_, err := env.svc.ConfirmEmail(context.Background(), "a@x.com", "ABC")
		if !errors.Is(err, model.NewOTPExpiredError()) {
			t.Fatalf("expected OTP_EXPIRED, got %v", err)
		}
		if env.users.users[u.ID].EmailConfirmed {
			t.Error("user must stay unconfirmed")
		}
	})
}

func TestResendOTP_SendsNewCode(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "a@x.com", "secret", false)
	env.otps.codes = []string{"RESEND0000"}

	delivered, err := env.svc.ResendOTP(context.Background(), "A@x.com")
	if err != nil {
		t.Fatalf("ResendOTP returned error: %v", err)
	}
	if !delivered {
		t.Error("expected delivered=true")
	}
	if env.users.users[u.ID].OTP.Code != "RESEND0000" {
		t.Errorf("OTP = %+v", env.users.users[u.ID].OTP)
	}
}

func TestResendOTP_AlreadyConfirmedIsConflict(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "a@x.com", "secret", true)

	_, err := env.svc.ResendOTP(context.Background(), "a@x.com")
	assertKind(t, err, model.KindConflict)
}

// confirmedAfterRead は読み取り直後に別リクエストがメール確認を完了した状態を再現する。
func confirmedAfterRead(env *testEnv, u *model.User) {
	env.users.findByEmailFn = func(context.Context, string) (*model.User, error) {
		clone := *env.users.users[u.ID]
		env.users.users[u.ID].EmailConfirmed = true
		return &clone, nil
	}
}

func TestConfirmEmail_ConcurrentConfirmationIsConflict(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "a@x.com", "secret", false)
	env.users.users[u.ID].OTP = &model.OTP{Code: "ABCDE12345", ExpiresAt: env.now.Add(time.Hour)}
	confirmedAfterRead(env, u)

	_, err := env.svc.ConfirmEmail(context.Background(), "a@x.com", "ABCDE12345")
	if !errors.Is(err, model.NewEmailAlreadyConfirmedError()) {
		t.Fatalf("expected EMAIL_ALREADY_CONFIRMED, got %v", err)
	}
	assertKind(t, err, model.KindConflict)
	if env.users.users[u.ID].OTP.Code != "ABCDE12345" {
		t.Error("OTP should not be replaced by the losing request")
	}
}

func TestResendOTP_ConcurrentConfirmationIsConflict(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "a@x.com", "secret", false)
	confirmedAfterRead(env, u)

	_, err := env.svc.ResendOTP(context.Background(), "a@x.com")
	assertKind(t, err, model.KindConflict)
	if len(env.mailer.sent) != 0 {
		t.Errorf("no mail should be sent, sent = %v", env.mailer.sent)
	}
}

// --- Login ---

func TestLogin_RecordsBearerToken(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "a@x.com", "p@ss1", true)

	result, err := env.svc.Login(context.Background(), "a@x.com", "p@ss1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if !strings.HasPrefix(result.Token, "Bearer ") {
		t.Fatalf("token %q should start with Bearer", result.Token)
	}

	raw := strings.TrimPrefix(result.Token, "Bearer ")
	claims, err := env.issuer.Verify(raw)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != u.ID || claims.Email != "a@x.com" || claims.Role != model.RoleUser {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if env.ledger.recorded[raw] != u.ID {
		t.Error("token should be recorded in the ledger")
	}
	if env.users.users[u.ID].Status != model.StatusOnline {
		t.Errorf("Status = %s, want ONLINE", env.users.users[u.ID].Status)
	}
}

func TestLogin_UnknownEmailAndWrongPasswordMatch(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "a@x.com", "p@ss1", true)

	_, errUnknown := env.svc.Login(context.Background(), "nobody@x.com", "p@ss1")
	_, errWrong := env.svc.Login(context.Background(), "a@x.com", "wrong")

	assertKind(t, errUnknown, model.KindUnauthorized)
	assertKind(t, errWrong, model.KindUnauthorized)
	if errUnknown.Error() != errWrong.Error() {
		t.Errorf("errors should be identical: %q vs %q", errUnknown, errWrong)
	}
	if len(env.ledger.recorded) != 0 {
		t.Error("no token should be recorded")
	}
}

// countingHasher はVerifyの呼び出し回数を数える。
type countingHasher struct {
	*security.PasswordHasher
	verifies int
}

func (h *countingHasher) Verify(plaintext, digest string) bool {
	h.verifies++
	return h.PasswordHasher.Verify(plaintext, digest)
}

func TestLogin_UnknownEmailStillVerifiesPassword(t *testing.T) {
	env := newTestEnv(t)
	hasher := &countingHasher{PasswordHasher: env.hasher}
	env.svc.hasher = hasher

	for i := 0; i < 2; i++ {
		_, err := env.svc.Login(context.Background(), "nobody@x.com", "p@ss1")
		assertKind(t, err, model.KindUnauthorized)
	}
	if hasher.verifies != 2 {
		t.Errorf("Verify calls = %d, want 2", hasher.verifies)
	}
	if env.svc.dummyDigest() == "" {
		t.Error("dummy digest should be a bcrypt hash")
	}
	if hasher.Verify("p@ss1", env.svc.dummyDigest()) {
		t.Error("dummy digest must not match user input")
	}
}

func TestLogin_UnconfirmedIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "a@x.com", "p@ss1", false)

	_, err := env.svc.Login(context.Background(), "a@x.com", "p@ss1")
	if !errors.Is(err, model.NewEmailNotConfirmedError()) {
		t.Fatalf("expected EMAIL_NOT_CONFIRMED, got %v", err)
	}
	assertKind(t, err, model.KindForbidden)
}

func TestLogin_LedgerFailureAborts(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "a@x.com", "p@ss1", true)
	env.ledger.recordErr = errors.New("db down")

	result, err := env.svc.Login(context.Background(), "a@x.com", "p@ss1")
	if err == nil {
		t.Fatalf("expected error, got result %+v", result)
	}
	if env.users.users[u.ID].Status != model.StatusOffline {
		t.Error("status should not change when the ledger write fails")
	}
}

func TestLogin_StatusFailureRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "a@x.com", "p@ss1", true)
	env.users.updateStatusFn = func(context.Context, int64, model.SessionStatus) error {
		return errors.New("db down")
	}

	if _, err := env.svc.Login(context.Background(), "a@x.com", "p@ss1"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(env.ledger.invalidated) != 1 {
		t.Errorf("recorded token should be revoked, invalidated = %v", env.ledger.invalidated)
	}
}

// --- ChangePassword ---

func TestChangePassword(t *testing.T) {
	t.Run("同じパスワードはConflict", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.seedUser(t, "a@x.com", "p@ss1", true)

		err := env.svc.ChangePassword(context.Background(), u.ID, ChangePasswordInput{OldPassword: "p@ss1", NewPassword: "p@ss1"})
		assertKind(t, err, model.KindConflict)
	})

	t.Run("現在のパスワード不一致はUnauthorized", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.seedUser(t, "a@x.com", "p@ss1", true)

		err := env.svc.ChangePassword(context.Background(), u.ID, ChangePasswordInput{OldPassword: "bad", NewPassword: "n3w"})
		assertKind(t, err, model.KindUnauthorized)
	})

	t.Run("成功時は新しいハッシュを保存", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.seedUser(t, "a@x.com", "p@ss1", true)

		err := env.svc.ChangePassword(context.Background(), u.ID, ChangePasswordInput{OldPassword: "p@ss1", NewPassword: "n3w-pass"})
		if err != nil {
			t.Fatalf("ChangePassword returned error: %v", err)
		}
		stored := env.users.users[u.ID].PasswordHash
		if !env.hasher.Verify("n3w-pass", stored) || env.hasher.Verify("p@ss1", stored) {
			t.Error("password hash should be replaced")
		}
	})

	t.Run("新パスワードが72バイト超過はBadRequest", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.seedUser(t, "a@x.com", "p@ss1", true)
		before := env.users.users[u.ID].PasswordHash

		err := env.svc.ChangePassword(context.Background(), u.ID, ChangePasswordInput{
			OldPassword: "p@ss1",
			NewPassword: strings.Repeat("é", 40),
		})
		assertKind(t, err, model.KindBadRequest)
		if env.users.users[u.ID].PasswordHash != before {
			t.Error("password hash should not change")
		}
	})

	t.Run("存在しないユーザーはNotFound", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.svc.ChangePassword(context.Background(), 99, ChangePasswordInput{OldPassword: "a", NewPassword: "b"})
		assertKind(t, err, model.KindNotFound)
	})
}

// --- Logout / RefreshToken ---

func TestLogout_SetsOfflineAndRevokes(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "a@x.com", "p@ss1", true)
	u.Status = model.StatusOnline

	if err := env.svc.Logout(context.Background(), u.ID, "raw-token"); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if env.users.users[u.ID].Status != model.StatusOffline {
		t.Errorf("Status = %s, want OFFLINE", env.users.users[u.ID].Status)
	}
	if len(env.ledger.invalidated) != 1 || env.ledger.invalidated[0] != "raw-token" {
		t.Errorf("invalidated = %v", env.ledger.invalidated)
	}
}

func TestLogout_UnknownUserIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.Logout(context.Background(), 42, "raw-token")
	assertKind(t, err, model.KindNotFound)
}

func TestRefreshToken(t *testing.T) {
	t.Run("対象ユーザーのトークンを発行", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.seedUser(t, "a@x.com", "p@ss1", true)

		bearer, err := env.svc.RefreshToken(context.Background(), u.ID)
		if err != nil {
			t.Fatalf("RefreshToken returned error: %v", err)
		}
		raw := strings.TrimPrefix(bearer, BearerPrefix)
		if env.ledger.recorded[raw] != u.ID {
			t.Error("refreshed token should be recorded for the target user")
		}
	})

	t.Run("存在しないユーザーはNotFound", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.RefreshToken(context.Background(), 7)
		assertKind(t, err, model.KindNotFound)
	})
}

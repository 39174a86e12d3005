package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/palserver/paltalk-server/wire"
)

// hashPassword derives a salted SHA-256 digest for storage. No third-party
// password-hashing library appears anywhere in the example pack the source
// was rewritten from (the nearest analogue, a teacher-style user store,
// hashes with MD5 and no salt); a random salt plus SHA-256 is the smallest
// stdlib-only step up from that baseline that avoids both cleartext storage
// and unsalted digests.
func hashPassword(password string) (hash, salt string, err error) {
	saltBytes := make([]byte, 16)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", fmt.Errorf("store: generate salt: %w", err)
	}
	salt = hex.EncodeToString(saltBytes)
	return digestPassword(password, salt), salt, nil
}

func digestPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

func passwordMatches(password, salt, wantHash string) bool {
	got := digestPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHash)) == 1
}

// LookupUID resolves a nickname to its uid, matching case-insensitively
// (the nickname column collates NOCASE). It returns wire.UIDAll, not an
// error, when no such nickname exists — callers that need to distinguish
// "not found" from "found" should use NicknameInUse instead.
func (d *DB) LookupUID(ctx context.Context, nickname string) (uint32, error) {
	var uid uint32
	err := d.Read.QueryRowContext(ctx, `SELECT uid FROM users WHERE nickname = ?`, nickname).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.UIDAll, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: lookup uid: %w", err)
	}
	return uid, nil
}

// NicknameInUse reports whether nickname is already registered.
func (d *DB) NicknameInUse(ctx context.Context, nickname string) (bool, error) {
	var n int
	err := d.Read.QueryRowContext(ctx, `SELECT 1 FROM users WHERE nickname = ?`, nickname).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: nickname in use: %w", err)
	}
	return true, nil
}

// nicknameMax is the longest nickname the wire format's fixed-width fields
// can carry; SuggestNickname truncates before appending its disambiguator.
const nicknameMax = wire.NicknameMax

// SuggestNickname proposes a free nickname derived from base: base itself
// if free, otherwise base truncated to leave room for a 3-digit random
// suffix, retried until an unused combination is found.
func (d *DB) SuggestNickname(ctx context.Context, base string) (string, error) {
	inUse, err := d.NicknameInUse(ctx, base)
	if err != nil {
		return "", err
	}
	if !inUse {
		return base, nil
	}

	stem := base
	if len(stem) > nicknameMax-3 {
		stem = stem[:nicknameMax-3]
	}

	for attempt := 0; attempt < 100; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(1000))
		if err != nil {
			return "", fmt.Errorf("store: suggest nickname: %w", err)
		}
		candidate := fmt.Sprintf("%s%03d", stem, n.Int64())
		inUse, err := d.NicknameInUse(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !inUse {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("store: suggest nickname: no free suffix found for %q", base)
}

// RegisterUser creates a new account and its paired secrets row, returning
// the assigned uid. Nickname collisions surface as ErrNicknameInUse.
func (d *DB) RegisterUser(ctx context.Context, nu NewUser) (uint32, error) {
	hash, salt, err := hashPassword(nu.Password)
	if err != nil {
		return 0, err
	}

	var uid uint32
	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO users(nickname, email, first, last, created)
			VALUES(?, ?, ?, ?, datetime('now','subsec'))`,
			nu.Nickname, nu.Email, nu.First, nu.Last)
		if err != nil {
			if isUniqueConstraint(err) {
				return ErrNicknameInUse
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		uid = uint32(id)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO secrets(uid, password_hash, password_salt) VALUES(?, ?, ?)`,
			uid, hash, salt)
		return err
	})
	if err != nil {
		return 0, err
	}
	return uid, nil
}

func isUniqueConstraint(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// LookupUser fetches the full account record for uid.
func (d *DB) LookupUser(ctx context.Context, uid uint32) (User, error) {
	var u User
	var verified, admin, staff int
	var lastLogin sql.NullString
	err := d.Read.QueryRowContext(ctx, `
		SELECT uid, nickname, email, first, last, privacy, verified, random,
		       paid1, get_offers_from_us, get_offers_from_affiliates, banners,
		       admin, sup, created, last_login
		FROM users WHERE uid = ?`, uid).Scan(
		&u.UID, &u.Nickname, &u.Email, &u.First, &u.Last, &u.Privacy, &verified,
		&u.Random, &u.Paid1, &u.GetOffersFromUs, &u.GetOffersFromAffiliates,
		&u.Banners, &admin, &staff, &u.Created, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("store: lookup user: %w", err)
	}
	u.Verified = verified != 0
	u.Admin = admin != 0
	u.Staff = staff != 0
	u.LastLogin = lastLogin.String
	return u, nil
}

// UserExists reports whether uid names a registered account.
func (d *DB) UserExists(ctx context.Context, uid uint32) (bool, error) {
	var n int
	err := d.Read.QueryRowContext(ctx, `SELECT 1 FROM users WHERE uid = ?`, uid).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: user exists: %w", err)
	}
	return true, nil
}

// CheckPassword reports whether password matches uid's stored credential.
// A missing uid is treated as a non-match rather than an error, so callers
// can feed unauthenticated input straight through without a prior existence
// check.
func (d *DB) CheckPassword(ctx context.Context, uid uint32, password string) (bool, error) {
	var hash, salt string
	err := d.Read.QueryRowContext(ctx,
		`SELECT password_hash, password_salt FROM secrets WHERE uid = ?`, uid).Scan(&hash, &salt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check password: %w", err)
	}
	return passwordMatches(password, salt, hash), nil
}

// SetPassword overwrites uid's stored credential.
func (d *DB) SetPassword(ctx context.Context, uid uint32, password string) error {
	hash, salt, err := hashPassword(password)
	if err != nil {
		return err
	}
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE secrets SET password_hash = ?, password_salt = ? WHERE uid = ?`, hash, salt, uid)
		if err != nil {
			return fmt.Errorf("store: set password: %w", err)
		}
		return nil
	})
}

// SetPasswordHint records uid's free-text password hint.
func (d *DB) SetPasswordHint(ctx context.Context, uid uint32, hint string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE secrets SET password_hint = ? WHERE uid = ?`, hint, uid)
		if err != nil {
			return fmt.Errorf("store: set password hint: %w", err)
		}
		return nil
	})
}

// SetSecretQuestion records uid's chosen secret question index and answer.
func (d *DB) SetSecretQuestion(ctx context.Context, uid uint32, questionIndex int, answer string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE secrets SET sq_index = ?, sq_answer = ? WHERE uid = ?`, questionIndex, answer, uid)
		if err != nil {
			return fmt.Errorf("store: set secret question: %w", err)
		}
		return nil
	})
}

// SecretQuestionFor returns the canned question text uid selected, for
// display during password recovery.
func (d *DB) SecretQuestionFor(ctx context.Context, uid uint32) (SecretQuestion, error) {
	var sq SecretQuestion
	err := d.Read.QueryRowContext(ctx, `
		SELECT sq.id, sq.secret_q
		FROM secrets s JOIN secret_questions sq ON sq.id = s.sq_index
		WHERE s.uid = ?`, uid).Scan(&sq.Index, &sq.Question)
	if errors.Is(err, sql.ErrNoRows) {
		return SecretQuestion{}, ErrUserNotFound
	}
	if err != nil {
		return SecretQuestion{}, fmt.Errorf("store: secret question: %w", err)
	}
	return sq, nil
}

// CheckQuestionResponse reports whether answer matches uid's stored secret
// answer, case-insensitively (the column collates NOCASE).
func (d *DB) CheckQuestionResponse(ctx context.Context, uid uint32, answer string) (bool, error) {
	var stored sql.NullString
	err := d.Read.QueryRowContext(ctx, `SELECT sq_answer FROM secrets WHERE uid = ?`, uid).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check question response: %w", err)
	}
	return stored.Valid && strings.EqualFold(stored.String, answer), nil
}

// IsStaff reports whether uid is an admin or support account.
func (d *DB) IsStaff(ctx context.Context, uid uint32) (bool, error) {
	var admin, sup int
	err := d.Read.QueryRowContext(ctx, `SELECT admin, sup FROM users WHERE uid = ?`, uid).Scan(&admin, &sup)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrUserNotFound
	}
	if err != nil {
		return false, fmt.Errorf("store: is staff: %w", err)
	}
	return admin != 0 || sup != 0, nil
}

// MarkLoggedIn stamps uid's last_login time to now.
func (d *DB) MarkLoggedIn(ctx context.Context, uid uint32) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE users SET last_login = datetime('now','subsec') WHERE uid = ?`, uid)
		if err != nil {
			return fmt.Errorf("store: mark logged in: %w", err)
		}
		return nil
	})
}

// SetPrivacy updates uid's privacy level ('A' all, 'T' buddies only, 'P'
// private/invisible to search).
func (d *DB) SetPrivacy(ctx context.Context, uid uint32, privacy byte) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE users SET privacy = ? WHERE uid = ?`, string(privacy), uid)
		if err != nil {
			return fmt.Errorf("store: set privacy: %w", err)
		}
		return nil
	})
}

// searchableFields whitelists the record-field prefixes SearchUsers accepts,
// rejecting anything else as ErrInvalidField so an arbitrary client-supplied
// field name can never be spliced into a query.
var searchableFields = map[string]string{
	"nick":  "nickname",
	"first": "first",
	"last":  "last",
	"email": "email",
}

// SearchUsers returns up to limit nicknames whose field value contains
// partial (case-insensitively), excluding accounts with privacy 'P'.
func (d *DB) SearchUsers(ctx context.Context, field, partial string, limit int) ([]string, error) {
	col, ok := searchableFields[field]
	if !ok {
		return nil, ErrInvalidField
	}

	rows, err := d.Read.QueryContext(ctx, fmt.Sprintf(`
		SELECT nickname FROM users
		WHERE %s LIKE '%%' || ? || '%%' ESCAPE '\' AND privacy != 'P'
		ORDER BY nickname LIMIT ?`, col), partial, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var nick string
		if err := rows.Scan(&nick); err != nil {
			return nil, fmt.Errorf("store: search users: %w", err)
		}
		out = append(out, nick)
	}
	return out, rows.Err()
}

// Package memstore はリポジトリインターフェースのインメモリ実装を提供する。
// PostgreSQLと同じ一意制約・カスケード・トランザクション境界を再現し、サービス層のテストで使用する。
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/pitlog/internal/model"
	"github.com/hitoshi/pitlog/internal/repository"
)

type likeKey struct {
	userID   string
	reviewID string
}

// Store はインメモリのエンティティストア。
type Store struct {
	mu sync.Mutex

	authSessions map[string]model.AuthSession
	sessions     map[string]model.Session
	rounds       map[string]model.Round
	grandstands  map[string]model.Grandstand
	logs         map[string]model.Log
	reviews      map[string]model.Review
	experiences  map[string]model.Experience
	likes        map[likeKey]time.Time

	// fault が設定されている場合、書き込み操作の途中で呼び出される。
	// エラーを返すとその操作全体がロールバックされる。
	fault func(op string) error
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{
		authSessions: make(map[string]model.AuthSession),
		sessions:     make(map[string]model.Session),
		rounds:       make(map[string]model.Round),
		grandstands:  make(map[string]model.Grandstand),
		logs:         make(map[string]model.Log),
		reviews:      make(map[string]model.Review),
		experiences:  make(map[string]model.Experience),
		likes:        make(map[likeKey]time.Time),
	}
}

// InjectFault は書き込み途中で呼び出される障害注入関数を設定する。
// op には "log", "review", "experience" のいずれかが渡される。
func (s *Store) InjectFault(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// AddRound はラウンドを投入する。
func (s *Store) AddRound(r model.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[r.ID] = r
}

// AddSession はセッションをそのまま投入する。CircuitIDは参照時にラウンドから補完される。
func (s *Store) AddSession(sess model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// AddGrandstand は観客席を投入する。
func (s *Store) AddGrandstand(g model.Grandstand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grandstands[g.ID] = g
}

// AddAuthSession はログインセッションを投入する。
func (s *Store) AddAuthSession(a model.AuthSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authSessions[a.ID] = a
}

// Counts はテスト検証用に各エンティティの件数を返す。
func (s *Store) Counts() (logs, reviews, experiences, likes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs), len(s.reviews), len(s.experiences), len(s.likes)
}

// ExperiencesForUser はテスト検証用にユーザーの全体験を返す。
func (s *Store) ExperiencesForUser(userID string) []model.Experience {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Experience
	for _, e := range s.experiences {
		if l, ok := s.logs[e.LogID]; ok && l.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogID < out[j].LogID })
	return out
}

// SetLikeCount はテスト検証用にレビューの like_count を直接書き換える。
func (s *Store) SetLikeCount(reviewID string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rv, ok := s.reviews[reviewID]; ok {
		rv.LikeCount = count
		s.reviews[reviewID] = rv
	}
}

// AuthSessions はAuthSessionRepositoryを返す。
func (s *Store) AuthSessions() *AuthSessionRepo { return &AuthSessionRepo{s: s} }

// Catalog はCatalogRepositoryを返す。
func (s *Store) Catalog() *CatalogRepo { return &CatalogRepo{s: s} }

// Logs はLogRepositoryを返す。
func (s *Store) Logs() *LogRepo { return &LogRepo{s: s} }

// Reviews はReviewRepositoryを返す。
func (s *Store) Reviews() *ReviewRepo { return &ReviewRepo{s: s} }

// Experiences はExperienceRepositoryを返す。
func (s *Store) Experiences() *ExperienceRepo { return &ExperienceRepo{s: s} }

// Likes はLikeRepositoryを返す。
func (s *Store) Likes() *LikeRepo { return &LikeRepo{s: s} }

func (s *Store) checkFault(op string) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op)
}

// snapshot はトランザクションのロールバック用に書き込み対象のマップを複製する。
type snapshot struct {
	logs        map[string]model.Log
	reviews     map[string]model.Review
	experiences map[string]model.Experience
	likes       map[likeKey]time.Time
}

func (s *Store) begin() snapshot {
	snap := snapshot{
		logs:        make(map[string]model.Log, len(s.logs)),
		reviews:     make(map[string]model.Review, len(s.reviews)),
		experiences: make(map[string]model.Experience, len(s.experiences)),
		likes:       make(map[likeKey]time.Time, len(s.likes)),
	}
	for k, v := range s.logs {
		snap.logs[k] = v
	}
	for k, v := range s.reviews {
		snap.reviews[k] = v
	}
	for k, v := range s.experiences {
		snap.experiences[k] = v
	}
	for k, v := range s.likes {
		snap.likes[k] = v
	}
	return snap
}

func (s *Store) rollback(snap snapshot) {
	s.logs = snap.logs
	s.reviews = snap.reviews
	s.experiences = snap.experiences
	s.likes = snap.likes
}

// tx はfnを排他的に実行し、エラー時には開始前の状態に戻す。
func (s *Store) tx(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.begin()
	if err := fn(); err != nil {
		s.rollback(snap)
		return err
	}
	return nil
}

// AuthSessionRepo はインメモリのログインセッションリポジトリ。
type AuthSessionRepo struct{ s *Store }

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *AuthSessionRepo) FindByID(_ context.Context, id string) (*model.AuthSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.authSessions[id]
	if !ok || !a.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &a, nil
}

// CatalogRepo はインメモリのカタログ参照リポジトリ。
type CatalogRepo struct{ s *Store }

func (r *CatalogRepo) session(id string) (*model.Session, bool) {
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, false
	}
	if round, ok := r.s.rounds[sess.RoundID]; ok {
		sess.CircuitID = round.CircuitID
	}
	return &sess, true
}

// FindSession は指定IDのセッションを取得する。
func (r *CatalogRepo) FindSession(_ context.Context, id string) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.session(id)
	if !ok {
		return nil, nil
	}
	return sess, nil
}

// FindSessions は指定IDのセッションをまとめて取得する。
func (r *CatalogRepo) FindSessions(_ context.Context, ids []string) ([]*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Session
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if sess, ok := r.session(id); ok {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// FindRound は指定IDのラウンドを取得する。
func (r *CatalogRepo) FindRound(_ context.Context, id string) (*model.Round, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	round, ok := r.s.rounds[id]
	if !ok {
		return nil, nil
	}
	return &round, nil
}

// FindGrandstand は指定IDの観客席を取得する。
func (r *CatalogRepo) FindGrandstand(_ context.Context, id string) (*model.Grandstand, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.grandstands[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

// LogRepo はインメモリの観戦記録リポジトリ。
type LogRepo struct{ s *Store }

// FindByID は指定IDの観戦記録を取得する。
func (r *LogRepo) FindByID(_ context.Context, id string) (*model.Log, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.logs[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// FindByUserAndSession はユーザーとセッションで観戦記録を取得する。
func (r *LogRepo) FindByUserAndSession(_ context.Context, userID, sessionID string) (*model.Log, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.logs {
		if l.UserID == userID && l.SessionID == sessionID {
			return &l, nil
		}
	}
	return nil, nil
}

// ListLoggedSessionIDs は指定セッションのうちユーザーが記録済みのセッションIDを返す。
func (r *LogRepo) ListLoggedSessionIDs(_ context.Context, userID string, sessionIDs []string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		want[id] = true
	}
	var ids []string
	for _, l := range r.s.logs {
		if l.UserID == userID && want[l.SessionID] {
			ids = append(ids, l.SessionID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *LogRepo) insert(view *model.LogView) error {
	for _, existing := range r.s.logs {
		if existing.UserID == view.Log.UserID && existing.SessionID == view.Log.SessionID {
			return fmt.Errorf("観戦記録の作成に失敗しました (session_id=%s): %w", view.Log.SessionID, repository.ErrDuplicate)
		}
	}
	if err := r.s.checkFault("log"); err != nil {
		return err
	}
	r.s.logs[view.Log.ID] = view.Log

	if rv := view.Review; rv != nil {
		if err := r.s.checkFault("review"); err != nil {
			return err
		}
		if err := insertReview(r.s, *rv); err != nil {
			return err
		}
	}
	if e := view.Experience; e != nil {
		if err := r.s.checkFault("experience"); err != nil {
			return err
		}
		for _, existing := range r.s.experiences {
			if existing.LogID == e.LogID {
				return fmt.Errorf("現地観戦体験の作成に失敗しました: %w", repository.ErrDuplicate)
			}
		}
		r.s.experiences[e.ID] = *e
	}
	return nil
}

func insertReview(s *Store, rv model.Review) error {
	if _, ok := s.logs[rv.LogID]; !ok {
		return fmt.Errorf("観戦記録が見つかりません: %s", rv.LogID)
	}
	for _, existing := range s.reviews {
		if existing.LogID == rv.LogID {
			return fmt.Errorf("レビューの作成に失敗しました: %w", repository.ErrDuplicate)
		}
	}
	s.reviews[rv.ID] = rv
	return nil
}

// CreateWithAttachments はLogと付随するReview・Experienceを1トランザクションで作成する。
func (r *LogRepo) CreateWithAttachments(_ context.Context, view *model.LogView) error {
	return r.s.tx(func() error { return r.insert(view) })
}

// CreateBatch は複数のLogと付随データを1トランザクションで作成する。
func (r *LogRepo) CreateBatch(_ context.Context, views []*model.LogView) error {
	return r.s.tx(func() error {
		for _, view := range views {
			if err := r.insert(view); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update は観戦記録の可変項目を更新する。
func (r *LogRepo) Update(_ context.Context, l *model.Log, dropExperience bool) error {
	return r.s.tx(func() error {
		if _, ok := r.s.logs[l.ID]; !ok {
			return fmt.Errorf("観戦記録が見つかりません: %s", l.ID)
		}
		r.s.logs[l.ID] = *l
		if dropExperience {
			for id, e := range r.s.experiences {
				if e.LogID == l.ID {
					delete(r.s.experiences, id)
				}
			}
		}
		return nil
	})
}

// DeleteCascade はいいね、Review、Experience、Logの順に削除する。
func (r *LogRepo) DeleteCascade(_ context.Context, id string) (bool, error) {
	var deleted bool
	err := r.s.tx(func() error {
		if _, ok := r.s.logs[id]; !ok {
			return nil
		}
		for rid, rv := range r.s.reviews {
			if rv.LogID != id {
				continue
			}
			for k := range r.s.likes {
				if k.reviewID == rid {
					delete(r.s.likes, k)
				}
			}
			delete(r.s.reviews, rid)
		}
		for eid, e := range r.s.experiences {
			if e.LogID == id {
				delete(r.s.experiences, eid)
			}
		}
		delete(r.s.logs, id)
		deleted = true
		return nil
	})
	return deleted, err
}

// ListEntriesByUser は集計用にユーザーの全観戦記録を返す。
func (r *LogRepo) ListEntriesByUser(_ context.Context, userID string) ([]model.LogEntry, error) {
	return r.entries(func(l model.Log) bool { return l.UserID == userID }), nil
}

// ListEntriesBySession は集計用にセッションの全観戦記録を返す。
func (r *LogRepo) ListEntriesBySession(_ context.Context, sessionID string) ([]model.LogEntry, error) {
	return r.entries(func(l model.Log) bool { return l.SessionID == sessionID }), nil
}

func (r *LogRepo) entries(match func(model.Log) bool) []model.LogEntry {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reviewed := make(map[string]bool, len(r.s.reviews))
	for _, rv := range r.s.reviews {
		reviewed[rv.LogID] = true
	}
	var out []model.LogEntry
	for _, l := range r.s.logs {
		if !match(l) {
			continue
		}
		entry := model.LogEntry{Log: l, HasReview: reviewed[l.ID]}
		if sess, ok := r.s.sessions[l.SessionID]; ok {
			if round, ok := r.s.rounds[sess.RoundID]; ok {
				entry.CircuitID = round.CircuitID
			}
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Log.LoggedAt.Before(out[j].Log.LoggedAt) })
	return out
}

// ReviewRepo はインメモリのレビューリポジトリ。
type ReviewRepo struct{ s *Store }

func (r *ReviewRepo) withJoin(rv model.Review) *model.Review {
	if l, ok := r.s.logs[rv.LogID]; ok {
		rv.UserID = l.UserID
		rv.SessionID = l.SessionID
	}
	return &rv
}

// FindByID は指定IDのレビューを取得する。
func (r *ReviewRepo) FindByID(_ context.Context, id string) (*model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rv, ok := r.s.reviews[id]
	if !ok {
		return nil, nil
	}
	return r.withJoin(rv), nil
}

// FindByLogID は観戦記録に付随するレビューを取得する。
func (r *ReviewRepo) FindByLogID(_ context.Context, logID string) (*model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rv := range r.s.reviews {
		if rv.LogID == logID {
			return r.withJoin(rv), nil
		}
	}
	return nil, nil
}

// Create はレビューを作成する。
func (r *ReviewRepo) Create(_ context.Context, rv *model.Review) error {
	return r.s.tx(func() error { return insertReview(r.s, *rv) })
}

// Update は本文・ネタバレフラグ・言語を更新する。
func (r *ReviewRepo) Update(_ context.Context, rv *model.Review) error {
	return r.s.tx(func() error {
		cur, ok := r.s.reviews[rv.ID]
		if !ok {
			return fmt.Errorf("レビューが見つかりません: %s", rv.ID)
		}
		cur.Body = rv.Body
		cur.ContainsSpoilers = rv.ContainsSpoilers
		cur.Language = rv.Language
		cur.UpdatedAt = rv.UpdatedAt
		r.s.reviews[rv.ID] = cur
		return nil
	})
}

// Delete はレビューといいねを削除する。
func (r *ReviewRepo) Delete(_ context.Context, id string) error {
	return r.s.tx(func() error {
		if _, ok := r.s.reviews[id]; !ok {
			return fmt.Errorf("レビューが見つかりません: %s", id)
		}
		for k := range r.s.likes {
			if k.reviewID == id {
				delete(r.s.likes, k)
			}
		}
		delete(r.s.reviews, id)
		return nil
	})
}

// ListBySession はセッションに対する全レビューを作成日時の降順で返す。
func (r *ReviewRepo) ListBySession(_ context.Context, sessionID string) ([]*model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Review
	for _, rv := range r.s.reviews {
		joined := r.withJoin(rv)
		if joined.SessionID == sessionID {
			out = append(out, joined)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ExperienceRepo はインメモリの現地観戦体験リポジトリ。
type ExperienceRepo struct{ s *Store }

// FindByLogID は観戦記録に付随する体験を取得する。
func (r *ExperienceRepo) FindByLogID(_ context.Context, logID string) (*model.Experience, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.experiences {
		if e.LogID == logID {
			return &e, nil
		}
	}
	return nil, nil
}

// Update は体験の内容を更新する。
func (r *ExperienceRepo) Update(_ context.Context, e *model.Experience) error {
	return r.s.tx(func() error {
		if _, ok := r.s.experiences[e.ID]; !ok {
			return fmt.Errorf("現地観戦体験が見つかりません: %s", e.ID)
		}
		r.s.experiences[e.ID] = *e
		return nil
	})
}

// LikeRepo はインメモリのいいねリポジトリ。
type LikeRepo struct{ s *Store }

func (r *LikeRepo) sync(reviewID string) (int, error) {
	rv, ok := r.s.reviews[reviewID]
	if !ok {
		return 0, fmt.Errorf("レビューが見つかりません: %s", reviewID)
	}
	count := 0
	for k := range r.s.likes {
		if k.reviewID == reviewID {
			count++
		}
	}
	rv.LikeCount = count
	r.s.reviews[reviewID] = rv
	return count, nil
}

// Like はいいねを追加し、更新後のいいね数を返す。
func (r *LikeRepo) Like(_ context.Context, userID, reviewID string, at time.Time) (int, error) {
	var count int
	err := r.s.tx(func() error {
		key := likeKey{userID: userID, reviewID: reviewID}
		if _, ok := r.s.likes[key]; ok {
			return fmt.Errorf("いいねの追加に失敗しました: %w", repository.ErrDuplicate)
		}
		r.s.likes[key] = at
		var err error
		count, err = r.sync(reviewID)
		return err
	})
	return count, err
}

// Unlike はいいねを取り消し、更新後のいいね数を返す。
func (r *LikeRepo) Unlike(_ context.Context, userID, reviewID string) (int, error) {
	var count int
	err := r.s.tx(func() error {
		delete(r.s.likes, likeKey{userID: userID, reviewID: reviewID})
		var err error
		count, err = r.sync(reviewID)
		return err
	})
	return count, err
}

// Recount は全レビューの like_count を再計算し、補正した件数を返す。
func (r *LikeRepo) Recount(_ context.Context) (int64, error) {
	var fixed int64
	err := r.s.tx(func() error {
		for id, rv := range r.s.reviews {
			before := rv.LikeCount
			after, err := r.sync(id)
			if err != nil {
				return err
			}
			if before != after {
				fixed++
			}
		}
		return nil
	})
	return fixed, err
}

var (
	_ repository.AuthSessionRepository = (*AuthSessionRepo)(nil)
	_ repository.CatalogRepository     = (*CatalogRepo)(nil)
	_ repository.LogRepository         = (*LogRepo)(nil)
	_ repository.ReviewRepository      = (*ReviewRepo)(nil)
	_ repository.ExperienceRepository  = (*ExperienceRepo)(nil)
	_ repository.LikeRepository        = (*LikeRepo)(nil)
)

// roster_sync.go — синхронизация кэша реестра с внешним справочником.
//
// RosterSyncService загружает реестр целиком, нормализует элементы
// и выполняет upsert по national_id пачками заданного размера.
// Строки, отсутствующие в свежем реестре, не удаляются.
//
// Нормализация элемента:
//   - не-объекты и элементы без dni пропускаются
//   - числа (saldo, semaforo, ult_impago, acceso_full) разбираются мягко:
//     нераспознанное значение — NULL
//   - sid, apynom, barcode сохраняются текстом без потери разрядов
//   - hab_controles — ControlFlags, raw — компактный JSON всего элемента
//   - повторы dni в одной выгрузке схлопываются, побеждает последний
//
// Запуски не пересекаются: периодический, ручной (admin API) и CLI
// используют один мьютекс; занятый сервис возвращает ErrSyncInProgress.
//
// Prometheus-метрики:
//   - mb_roster_sync_duration_seconds — длительность синхронизации
//   - mb_roster_sync_records_total{result} — записи по результату
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/memberbridge/internal/domain/model"
	"github.com/bigkaa/memberbridge/internal/repository"
)

// Prometheus-метрики синхронизации реестра.
var (
	rosterSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mb_roster_sync_duration_seconds",
		Help:    "Длительность синхронизации реестра",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s … ~256s
	})
	rosterSyncRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mb_roster_sync_records_total",
		Help: "Записи реестра, обработанные синхронизацией, по результату.",
	}, []string{"result"})
)

// RosterSource — источник полного реестра.
type RosterSource interface {
	FetchFullRoster(ctx context.Context) ([]json.RawMessage, error)
}

// defaultRosterBatchSize — размер пачки, если в конструктор передан batchSize <= 0.
const defaultRosterBatchSize = 500

// RosterSyncService — сервис синхронизации кэша реестра.
type RosterSyncService struct {
	source        RosterSource
	rosterRepo    repository.RosterRepository
	syncStateRepo repository.SyncStateRepository
	batchSize     int
	interval      time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRosterSyncService создаёт сервис синхронизации реестра.
// batchSize — размер пачки по умолчанию, interval — период фоновой синхронизации.
func NewRosterSyncService(
	source RosterSource,
	rosterRepo repository.RosterRepository,
	syncStateRepo repository.SyncStateRepository,
	batchSize int,
	interval time.Duration,
	logger *slog.Logger,
) *RosterSyncService {
	if batchSize <= 0 {
		batchSize = defaultRosterBatchSize
	}
	return &RosterSyncService{
		source:        source,
		rosterRepo:    rosterRepo,
		syncStateRepo: syncStateRepo,
		batchSize:     batchSize,
		interval:      interval,
		logger:        logger.With(slog.String("component", "roster_sync")),
	}
}

// Start запускает фоновую горутину с периодической синхронизацией.
// interval <= 0 — фоновая синхронизация отключена.
func (s *RosterSyncService) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Периодическая синхронизация реестра отключена")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическая синхронизация реестра запущена",
			slog.String("interval", s.interval.String()),
			slog.Int("batch_size", s.batchSize),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическая синхронизация реестра остановлена")
				return
			case <-ticker.C:
				if _, err := s.SyncFullRoster(ctx, 0); err != nil {
					s.logger.Error("Ошибка периодической синхронизации реестра",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *RosterSyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// SyncFullRoster выполняет синхронизацию реестра.
// batchSize <= 0 — размер пачки по умолчанию.
func (s *RosterSyncService) SyncFullRoster(ctx context.Context, batchSize int) (*model.RosterSyncResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	if batchSize <= 0 {
		batchSize = s.batchSize
	}

	start := time.Now()
	result := &model.RosterSyncResult{
		BatchSize: batchSize,
		StartedAt: start.UTC(),
	}
	defer func() {
		rosterSyncDuration.Observe(time.Since(start).Seconds())
	}()

	// 1. Загружаем реестр
	items, err := s.source.FetchFullRoster(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка реестра: %w", err)
	}
	result.Fetched = len(items)

	// 2. Нормализуем и схлопываем повторы
	records := make([]*model.RosterRecord, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		rec, ok := NormalizeRosterItem(item)
		if !ok {
			result.Skipped++
			continue
		}
		if i, dup := index[rec.NationalID]; dup {
			records[i] = rec
			result.Skipped++
			continue
		}
		index[rec.NationalID] = len(records)
		records = append(records, rec)
	}

	if len(records) == 0 {
		s.logger.Warn("В реестре нет пригодных записей",
			slog.Int("fetched", result.Fetched),
		)
	}

	// 3. Upsert пачками
	for from := 0; from < len(records); from += batchSize {
		to := min(from+batchSize, len(records))
		chunk := records[from:to]

		added, updated, err := s.rosterRepo.BulkUpsert(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("upsert пачки %d-%d: %w", from, to, err)
		}
		result.Added += added
		result.Updated += updated
		result.Unchanged += len(chunk) - added - updated
	}

	result.CompletedAt = time.Now().UTC()

	rosterSyncRecords.WithLabelValues("added").Add(float64(result.Added))
	rosterSyncRecords.WithLabelValues("updated").Add(float64(result.Updated))
	rosterSyncRecords.WithLabelValues("unchanged").Add(float64(result.Unchanged))
	rosterSyncRecords.WithLabelValues("skipped").Add(float64(result.Skipped))

	// 4. Фиксируем состояние
	if err := s.syncStateRepo.UpdateRosterSync(ctx, result.CompletedAt, result.Fetched, result.Upserted()); err != nil {
		s.logger.Warn("Не удалось сохранить состояние синхронизации",
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Синхронизация реестра завершена",
		slog.Int("fetched", result.Fetched),
		slog.Int("skipped", result.Skipped),
		slog.Int("added", result.Added),
		slog.Int("updated", result.Updated),
		slog.Int("unchanged", result.Unchanged),
		slog.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// Status возвращает состояние последней синхронизации и размер кэша.
func (s *RosterSyncService) Status(ctx context.Context) (*model.RosterStatus, error) {
	state, err := s.syncStateRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение состояния синхронизации: %w", err)
	}
	count, err := s.rosterRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт записей реестра: %w", err)
	}
	return &model.RosterStatus{State: state, RosterCount: count}, nil
}

// GetRecord возвращает запись кэша реестра по номеру документа.
func (s *RosterSyncService) GetRecord(ctx context.Context, nationalID string) (*model.RosterRecord, error) {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return nil, fmt.Errorf("%w: номер документа обязателен", ErrValidation)
	}
	rec, err := s.rosterRepo.GetByNationalID(ctx, nationalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: номер документа %s в реестре", ErrNotFound, nationalID)
	}
	return rec, err
}

// --- Нормализация элемента реестра ---

// NormalizeRosterItem приводит элемент выгрузки к RosterRecord.
// ok = false — элемент пропускается (не объект или пустой dni).
func NormalizeRosterItem(raw json.RawMessage) (*model.RosterRecord, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}

	nationalID := textField(fields["dni"])
	if nationalID == "" || exceedsLength(nationalID, model.MaxNationalIDLength) {
		return nil, false
	}

	// Запись с неуместимым идентификатором пропускается целиком,
	// иначе одна строка обрывает upsert всей пачки
	externalID := textField(fields["sid"])
	barcode := textField(fields["barcode"])
	if exceedsLength(externalID, model.MaxExternalIDLength) || exceedsLength(barcode, model.MaxBarcodeLength) {
		return nil, false
	}

	flags, err := model.ParseControlFlags(fields["hab_controles"])
	if err != nil {
		flags = model.AbsentControlFlags()
	}

	var snapshot bytes.Buffer
	if err := json.Compact(&snapshot, raw); err != nil {
		return nil, false
	}

	return &model.RosterRecord{
		NationalID:       nationalID,
		ExternalID:       externalID,
		FullName:         truncateRunes(textField(fields["apynom"]), model.MaxFullNameLength),
		Barcode:          barcode,
		Balance:          lenientFloat(fields["saldo"]),
		RiskLevel:        lenientInt(fields["semaforo"]),
		LastUnpaidPeriod: lenientInt(fields["ult_impago"]),
		FullAccess:       lenientInt(fields["acceso_full"]),
		ControlFlags:     flags,
		RawSnapshot:      snapshot.Bytes(),
	}, true
}

// exceedsLength сообщает, что s длиннее limit символов.
func exceedsLength(s string, limit int) bool {
	return utf8.RuneCountInString(s) > limit
}

// truncateRunes обрезает s до limit символов.
func truncateRunes(s string, limit int) string {
	if !exceedsLength(s, limit) {
		return s
	}
	return string([]rune(s)[:limit])
}

// textField возвращает строку или числовой литерал как текст (trim).
// null, bool и составные значения — пустая строка.
func textField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(raw)
	default:
		return ""
	}
}

// lenientFloat разбирает число из числа, строки ("12.5", "12,5") или bool.
// Нераспознанное значение — nil.
func lenientFloat(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	var s string
	switch {
	case bytes.Equal(raw, []byte("true")):
		s = "1"
	case bytes.Equal(raw, []byte("false")):
		s = "0"
	default:
		s = textField(raw)
	}
	if s == "" {
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f, err = strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// lenientInt разбирает целое (дробная часть отбрасывается).
func lenientInt(raw json.RawMessage) *int {
	f := lenientFloat(raw)
	if f == nil || *f > math.MaxInt32 || *f < math.MinInt32 {
		return nil
	}
	v := int(math.Trunc(*f))
	return &v
}

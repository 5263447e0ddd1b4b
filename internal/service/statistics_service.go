package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"ontrak/internal/domain"
	"ontrak/internal/repository"
	"ontrak/internal/storage"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrInvalidFilter  = errors.New("invalid statistics filter")
	ErrExportNotFound = errors.New("archived report not found")
)

// punctuality threshold floor, in minutes
const minPunctualityThreshold = 5.0

// topRankedActivities caps the delayed/efficient leaderboards.
const topRankedActivities = 5

// ArchiveResult describes one CSV archived to object storage.
type ArchiveResult struct {
	ExportID  string `json:"exportId"`
	ObjectKey string `json:"objectKey"`
	URL       string `json:"url"`
	RowCount  int    `json:"rowCount"`
}

// --- Service Interface ---

// StatisticsService reads historical sessions (never mutating them) and
// produces variance/punctuality/ranking reports. Upstream failures degrade
// the affected slice to an empty default; the report shape is always
// complete.
type StatisticsService interface {
	Report(ctx context.Context, filter domain.StatisticsFilter) (*domain.StatisticsReport, error)
	ExportCSV(ctx context.Context, filter domain.StatisticsFilter) ([]byte, int, error)
	ArchiveReport(ctx context.Context, requestedBy primitive.ObjectID, filter domain.StatisticsFilter) (*ArchiveResult, error)
	ListArchives(ctx context.Context, requestedBy primitive.ObjectID) ([]domain.ReportExport, error)
	DeleteArchive(ctx context.Context, requestedBy, exportID primitive.ObjectID) error
}

// --- Service Implementation ---

// statisticsService implements the StatisticsService interface.
type statisticsService struct {
	sessionRepo  repository.SessionRepository
	templateRepo repository.TemplateRepository
	userRepo     repository.UserRepository
	exportRepo   repository.ExportRepository
	archive      storage.ObjectStorage
	fetchTimeout time.Duration
	now          func() time.Time
}

// NewStatisticsService creates a new instance of statisticsService.
// fetchTimeout bounds each upstream fetch (templates, trainers, sessions);
// archive and exportRepo may be nil when report archival is not configured.
func NewStatisticsService(
	sessionRepo repository.SessionRepository,
	templateRepo repository.TemplateRepository,
	userRepo repository.UserRepository,
	exportRepo repository.ExportRepository,
	archive storage.ObjectStorage,
	fetchTimeout time.Duration,
) StatisticsService {
	if fetchTimeout <= 0 {
		fetchTimeout = 8 * time.Second
	}
	return &statisticsService{
		sessionRepo:  sessionRepo,
		templateRepo: templateRepo,
		userRepo:     userRepo,
		exportRepo:   exportRepo,
		archive:      archive,
		fetchTimeout: fetchTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// occurrence is one qualifying activity execution, flattened for grouping.
type occurrence struct {
	activityName     string
	trainerID        primitive.ObjectID
	templateID       primitive.ObjectID
	day              int
	plannedMinutes   float64
	actualMinutes    float64
	startVariance    float64 // minutes, signed
	durationVariance float64 // minutes, signed
	onTime           bool
}

// sessionScope is the parsed, repository-ready form of a StatisticsFilter.
type sessionScope struct {
	trainerID  *primitive.ObjectID
	templateID *primitive.ObjectID
	day        int
	since      *time.Time
}

// Report computes the full aggregation for one filter. Only a malformed
// filter is an error; upstream failures are absorbed per slice.
func (s *statisticsService) Report(ctx context.Context, filter domain.StatisticsFilter) (*domain.StatisticsReport, error) {
	scope, err := s.parseFilter(filter)
	if err != nil {
		return nil, err
	}

	report := &domain.StatisticsReport{
		Adherence:               []domain.AdherenceRow{},
		MostDelayedActivities:   []domain.ActivityRanking{},
		MostEfficientActivities: []domain.ActivityRanking{},
		Trainings:               []domain.TrainingVariance{},
		Trainers:                []domain.TrainerVariance{},
		DaySpecificStats:        map[string]domain.DayStats{},
	}

	// The three upstream fetches are independent and each carries its own
	// deadline; a slow or failing one must never hang the whole report.
	var (
		wg          sync.WaitGroup
		sessions    []domain.ScheduleSession
		sessionsErr error
		templates   []domain.Template
		templateErr error
		trainers    []domain.User
		trainerErr  error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
		sessions, sessionsErr = s.sessionRepo.FindCompleted(fetchCtx, scope.query())
	}()
	go func() {
		defer wg.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
		templates, templateErr = s.templateRepo.List(fetchCtx)
	}()
	go func() {
		defer wg.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
		trainers, trainerErr = s.userRepo.GetByRole(fetchCtx, domain.RoleTrainer)
	}()
	wg.Wait()

	if sessionsErr != nil {
		log.Printf("WARN: statistics session scan failed: %v", sessionsErr)
		report.Notes = append(report.Notes, "could not load sessions")
		sessions = nil
	}
	if templateErr != nil {
		log.Printf("WARN: statistics template fetch failed: %v", templateErr)
		report.Notes = append(report.Notes, "could not load trainings")
		templates = nil
	}
	if trainerErr != nil {
		log.Printf("WARN: statistics trainer directory fetch failed: %v", trainerErr)
		report.Notes = append(report.Notes, "could not load trainers")
		trainers = nil
	}

	occurrences, qualifyingDays := collectOccurrences(sessions)

	// Raw adherence rows and the headline punctuality rate.
	onTime := 0
	for _, o := range occurrences {
		if o.onTime {
			onTime++
		}
		report.Adherence = append(report.Adherence, domain.AdherenceRow{
			ActivityName:     o.activityName,
			OnTime:           o.onTime,
			Delayed:          !o.onTime,
			DurationVariance: roundMinutes(o.durationVariance),
		})
	}
	if len(occurrences) > 0 {
		report.OnTimeStartRate = int(math.Round(float64(onTime) / float64(len(occurrences)) * 100))
	}
	report.TotalCompletedDays = qualifyingDays

	// Per-training variance over the filtered occurrence set. Trainings with
	// no qualifying occurrences report 0, not absence.
	for _, t := range templates {
		var sum float64
		var n int
		for _, o := range occurrences {
			if o.templateID == t.ID {
				sum += o.durationVariance
				n++
			}
		}
		variance := 0
		if n > 0 {
			variance = roundMinutes(sum / float64(n))
		}
		report.Trainings = append(report.Trainings, domain.TrainingVariance{
			ID:           t.ID.Hex(),
			Name:         t.Name,
			TimeVariance: variance,
		})
	}

	// Per-trainer variance is computed by re-running the scan with the
	// trainer fixed, not by decomposing the all-trainers result — the
	// trainer × training × day filters interact multiplicatively. One
	// concurrent sub-query per trainer.
	report.Trainers = s.perTrainerVariance(ctx, scope, trainers)

	report.DaySpecificStats = daySpecificStats(occurrences)

	// The leaderboards rank the trainer-unfiltered population.
	rankingOccurrences := occurrences
	if scope.trainerID != nil {
		allScope := *scope
		allScope.trainerID = nil
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		allSessions, err := s.sessionRepo.FindCompleted(fetchCtx, allScope.query())
		cancel()
		if err != nil {
			log.Printf("WARN: statistics ranking scan failed: %v", err)
			report.Notes = append(report.Notes, "could not load activity rankings")
			allSessions = nil
		}
		rankingOccurrences, _ = collectOccurrences(allSessions)
	}
	report.MostDelayedActivities, report.MostEfficientActivities = rankActivities(rankingOccurrences)

	return report, nil
}

// ExportCSV renders the filter's raw adherence rows as CSV.
func (s *statisticsService) ExportCSV(ctx context.Context, filter domain.StatisticsFilter) ([]byte, int, error) {
	report, err := s.Report(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"activityName", "onTime", "delayed", "durationVariance"}); err != nil {
		return nil, 0, err
	}
	for _, row := range report.Adherence {
		record := []string{
			row.ActivityName,
			strconv.FormatBool(row.OnTime),
			strconv.FormatBool(row.Delayed),
			strconv.Itoa(row.DurationVariance),
		}
		if err := w.Write(record); err != nil {
			return nil, 0, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(report.Adherence), nil
}

// ArchiveReport uploads the CSV to object storage, records the export, and
// hands back a presigned download URL.
func (s *statisticsService) ArchiveReport(ctx context.Context, requestedBy primitive.ObjectID, filter domain.StatisticsFilter) (*ArchiveResult, error) {
	if s.archive == nil || s.exportRepo == nil {
		return nil, errors.New("report archival is not configured")
	}

	body, rowCount, err := s.ExportCSV(ctx, filter)
	if err != nil {
		return nil, err
	}

	objectKey := fmt.Sprintf("reports/adherence-%s-%s.csv", s.now().Format("20060102-150405"), uuid.NewString())
	if err := s.archive.Upload(ctx, objectKey, "text/csv", body); err != nil {
		return nil, err
	}

	export := &domain.ReportExport{
		RequestedBy: requestedBy,
		ObjectKey:   objectKey,
		Bucket:      s.archive.Bucket(),
		ContentType: "text/csv",
		RowCount:    rowCount,
		Filter:      filter,
	}
	exportID, err := s.exportRepo.Create(ctx, export)
	if err != nil {
		return nil, err
	}

	url, err := s.archive.GeneratePresignedDownloadURL(ctx, objectKey, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return nil, err
	}

	return &ArchiveResult{
		ExportID:  exportID.Hex(),
		ObjectKey: objectKey,
		URL:       url,
		RowCount:  rowCount,
	}, nil
}

// ListArchives returns the caller's archived exports.
func (s *statisticsService) ListArchives(ctx context.Context, requestedBy primitive.ObjectID) ([]domain.ReportExport, error) {
	if s.exportRepo == nil {
		return []domain.ReportExport{}, nil
	}
	return s.exportRepo.GetByRequester(ctx, requestedBy)
}

// DeleteArchive removes one of the caller's archived reports: the CSV object
// first, then the metadata record. Someone else's export is reported as not
// found, not forbidden.
func (s *statisticsService) DeleteArchive(ctx context.Context, requestedBy, exportID primitive.ObjectID) error {
	if s.exportRepo == nil {
		return errors.New("report archival is not configured")
	}

	export, err := s.exportRepo.GetByID(ctx, exportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrExportNotFound
		}
		return err
	}
	if export.RequestedBy != requestedBy {
		return ErrExportNotFound
	}

	if s.archive != nil {
		if err := s.archive.DeleteObject(ctx, export.ObjectKey); err != nil {
			return err
		}
	}

	if err := s.exportRepo.Delete(ctx, exportID, requestedBy); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrExportNotFound
		}
		return err
	}
	return nil
}

// === internal helpers ===

func (s *statisticsService) parseFilter(filter domain.StatisticsFilter) (*sessionScope, error) {
	scope := &sessionScope{day: filter.Day}
	if filter.Day < 0 {
		return nil, ErrInvalidFilter
	}

	if filter.TrainerID != "" && filter.TrainerID != domain.FilterAll {
		id, err := primitive.ObjectIDFromHex(filter.TrainerID)
		if err != nil {
			return nil, ErrInvalidFilter
		}
		scope.trainerID = &id
	}
	if filter.TrainingID != "" && filter.TrainingID != domain.FilterAll {
		id, err := primitive.ObjectIDFromHex(filter.TrainingID)
		if err != nil {
			return nil, ErrInvalidFilter
		}
		scope.templateID = &id
	}

	switch filter.DateRange {
	case "", domain.FilterAll:
	case "7d":
		since := s.now().AddDate(0, 0, -7)
		scope.since = &since
	case "30d":
		since := s.now().AddDate(0, 0, -30)
		scope.since = &since
	case "90d":
		since := s.now().AddDate(0, 0, -90)
		scope.since = &since
	default:
		return nil, ErrInvalidFilter
	}
	return scope, nil
}

func (sc *sessionScope) query() repository.SessionQuery {
	return repository.SessionQuery{
		TrainerID:  sc.trainerID,
		TemplateID: sc.templateID,
		Day:        sc.day,
		Since:      sc.since,
	}
}

// collectOccurrences flattens completed sessions into qualifying activity
// occurrences and counts the sessions that contributed at least one.
func collectOccurrences(sessions []domain.ScheduleSession) ([]occurrence, int) {
	var out []occurrence
	qualifyingDays := 0
	for i := range sessions {
		session := &sessions[i]
		contributed := false
		for j := range session.Activities {
			activity := &session.Activities[j]
			if !activity.Completed || activity.ActualStart == nil || activity.ActualEnd == nil {
				continue
			}

			scheduled, err := domain.ResolveClockOn(session.CreatedAt.UTC(), activity.StartTime)
			if err != nil {
				log.Printf("WARN: skipping occurrence with bad planned start %q in session %s", activity.StartTime, session.ID.Hex())
				continue
			}

			planned := float64(activity.DurationMinutes)
			actual := activity.ActualEnd.Sub(*activity.ActualStart).Minutes()
			startVariance := activity.ActualStart.Sub(scheduled).Minutes()
			threshold := math.Max(minPunctualityThreshold, planned*0.10)

			out = append(out, occurrence{
				activityName:     activity.Name,
				trainerID:        session.TrainerID,
				templateID:       session.TemplateID,
				day:              session.Day,
				plannedMinutes:   planned,
				actualMinutes:    actual,
				startVariance:    startVariance,
				durationVariance: actual - planned,
				onTime:           math.Abs(startVariance) <= threshold,
			})
			contributed = true
		}
		if contributed {
			qualifyingDays++
		}
	}
	return out, qualifyingDays
}

// perTrainerVariance runs one scoped sub-query per trainer concurrently.
func (s *statisticsService) perTrainerVariance(ctx context.Context, scope *sessionScope, trainers []domain.User) []domain.TrainerVariance {
	results := make([]domain.TrainerVariance, len(trainers))
	var wg sync.WaitGroup
	for i := range trainers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trainer := trainers[i]
			trainerScope := *scope
			trainerScope.trainerID = &trainer.ID

			fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			defer cancel()
			sessions, err := s.sessionRepo.FindCompleted(fetchCtx, trainerScope.query())
			variance := 0
			if err != nil {
				log.Printf("WARN: statistics sub-query for trainer %s failed: %v", trainer.ID.Hex(), err)
			} else {
				occurrences, _ := collectOccurrences(sessions)
				if len(occurrences) > 0 {
					var sum float64
					for _, o := range occurrences {
						sum += o.durationVariance
					}
					variance = roundMinutes(sum / float64(len(occurrences)))
				}
			}
			results[i] = domain.TrainerVariance{
				ID:           trainer.ID.Hex(),
				Name:         trainer.Name,
				TimeVariance: variance,
			}
		}(i)
	}
	wg.Wait()

	out := make([]domain.TrainerVariance, 0, len(results))
	out = append(out, results...)
	return out
}

// daySpecificStats buckets occurrences by (training, day), then by activity
// name within each bucket.
func daySpecificStats(occurrences []occurrence) map[string]domain.DayStats {
	type accum struct {
		varianceSum float64
		actualSum   float64
		n           int
	}
	buckets := map[string]map[string]*accum{}
	days := map[string]domain.DayStats{}

	for _, o := range occurrences {
		key := fmt.Sprintf("%s:%d", o.templateID.Hex(), o.day)
		if _, ok := buckets[key]; !ok {
			buckets[key] = map[string]*accum{}
			days[key] = domain.DayStats{TrainingID: o.templateID.Hex(), Day: o.day}
		}
		a := buckets[key][o.activityName]
		if a == nil {
			a = &accum{}
			buckets[key][o.activityName] = a
		}
		a.varianceSum += o.durationVariance
		a.actualSum += o.actualMinutes
		a.n++
	}

	out := make(map[string]domain.DayStats, len(days))
	for key, stats := range days {
		names := make([]string, 0, len(buckets[key]))
		for name := range buckets[key] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			a := buckets[key][name]
			stats.Activities = append(stats.Activities, domain.ActivityDayStat{
				ActivityName:         name,
				MeanDurationVariance: roundMinutes(a.varianceSum / float64(a.n)),
				MeanActualDuration:   roundMinutes(a.actualSum / float64(a.n)),
			})
		}
		out[key] = stats
	}
	return out
}

// rankActivities groups occurrences by activity name and splits the mean
// actual-vs-planned difference into delayed (positive, descending) and
// efficient (negative, most time saved first) leaderboards.
func rankActivities(occurrences []occurrence) (delayed, efficient []domain.ActivityRanking) {
	type accum struct {
		actualSum  float64
		plannedSum float64
		n          int
	}
	byName := map[string]*accum{}
	for _, o := range occurrences {
		a := byName[o.activityName]
		if a == nil {
			a = &accum{}
			byName[o.activityName] = a
		}
		a.actualSum += o.actualMinutes
		a.plannedSum += o.plannedMinutes
		a.n++
	}

	delayed = []domain.ActivityRanking{}
	efficient = []domain.ActivityRanking{}
	for name, a := range byName {
		diff := roundMinutes(a.actualSum/float64(a.n) - a.plannedSum/float64(a.n))
		ranking := domain.ActivityRanking{
			ActivityName:      name,
			DifferenceMinutes: diff,
			Difference:        formatMinutes(diff),
		}
		if diff > 0 {
			delayed = append(delayed, ranking)
		} else if diff < 0 {
			efficient = append(efficient, ranking)
		}
	}

	sort.Slice(delayed, func(i, j int) bool {
		if delayed[i].DifferenceMinutes != delayed[j].DifferenceMinutes {
			return delayed[i].DifferenceMinutes > delayed[j].DifferenceMinutes
		}
		return delayed[i].ActivityName < delayed[j].ActivityName
	})
	sort.Slice(efficient, func(i, j int) bool {
		if efficient[i].DifferenceMinutes != efficient[j].DifferenceMinutes {
			return efficient[i].DifferenceMinutes < efficient[j].DifferenceMinutes
		}
		return efficient[i].ActivityName < efficient[j].ActivityName
	})

	if len(delayed) > topRankedActivities {
		delayed = delayed[:topRankedActivities]
	}
	if len(efficient) > topRankedActivities {
		efficient = efficient[:topRankedActivities]
	}
	return delayed, efficient
}

// roundMinutes rounds a float minute value to the nearest whole minute.
func roundMinutes(minutes float64) int {
	return int(math.Round(minutes))
}

// formatMinutes renders an absolute minute count as "Xh Ymin" or "Ymin".
func formatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = -minutes
	}
	if minutes >= 60 {
		return fmt.Sprintf("%dh %dmin", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%dmin", minutes)
}

package uploader

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"automag/internal/domain"
	"automag/internal/infra/metrics"
)

const (
	category            = "foreign_reading"
	minDescriptionRunes = 21
)

// Service готовит и сохраняет материал.
type Service struct {
	repo         domain.MaterialRepo
	describer    domain.DescriptionWriter
	publishers   []domain.EventPublisher
	creatorEmail string
	log          zerolog.Logger
	now          func() time.Time
}

// NewService создаёт загрузчик. describer может быть nil, тогда описание строится по шаблону.
func NewService(repo domain.MaterialRepo, describer domain.DescriptionWriter, creatorEmail string, logger zerolog.Logger, publishers ...domain.EventPublisher) *Service {
	if creatorEmail == "" {
		creatorEmail = "magBot@inkcraft.cn"
	}
	return &Service{
		repo:         repo,
		describer:    describer,
		publishers:   publishers,
		creatorEmail: creatorEmail,
		log:          logger,
		now:          time.Now,
	}
}

// Upload сохраняет материал. Материал с пятью абзацами и меньше не сохраняется: возвращается nil без ошибки.
func (s *Service) Upload(ctx context.Context, material domain.Material, originalLink, originalContent string) (*domain.StoredMaterial, error) {
	paragraphs := material.ParagraphCount()
	if paragraphs < minParagraphs {
		s.log.Warn().Str("url", originalLink).Int("paragraphs", paragraphs).Msg("uploader: слишком мало абзацев, материал не сохраняется")
		return nil, nil
	}

	record, err := s.Build(ctx, material, originalLink, originalContent)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.Insert(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("uploader: сохранение материала: %w: %w", domain.ErrPersistence, err)
	}
	if stored.ID == 0 {
		return nil, fmt.Errorf("uploader: %w: insert returned no row", domain.ErrPersistence)
	}

	metrics.ObserveUpload(stored.IsFeatured)
	s.log.Info().
		Int64("id", stored.ID).
		Str("title", stored.Title).
		Str("source", material.Source()).
		Str("difficulty", material.Difficulty()).
		Int("tags", len(stored.Tags)).
		Int("paragraphs", paragraphs).
		Float64("price", stored.Price).
		Msg("uploader: материал сохранён")

	s.publish(ctx, stored)
	return &stored, nil
}

// Build вычисляет все производные поля записи.
func (s *Service) Build(ctx context.Context, material domain.Material, originalLink, originalContent string) (domain.StoredMaterial, error) {
	preview, err := BuildPreview(material)
	if err != nil {
		return domain.StoredMaterial{}, fmt.Errorf("uploader: %w", err)
	}
	price, featured := PriceFor(material.ParagraphCount())

	cleaned := ""
	if originalContent != "" {
		cleaned = CleanContent(originalContent)
	}

	return domain.StoredMaterial{
		Title:           Title(material),
		Description:     s.description(ctx, material),
		Tags:            Tags(material),
		Category:        category,
		OriginalContent: cleaned,
		OriginalLink:    originalLink,
		MaterialContent: material.JSON(),
		PreviewContent:  preview,
		Price:           price,
		CreatorEmail:    s.creatorEmail,
		Owners:          []string{s.creatorEmail},
		PurchaseCount:   0,
		ViewCount:       0,
		IsPublished:     true,
		IsFeatured:      featured,
	}, nil
}

func (s *Service) description(ctx context.Context, material domain.Material) string {
	if s.describer == nil {
		return FallbackDescription(material)
	}
	desc, err := s.describer.Describe(ctx, material)
	if err != nil {
		s.log.Warn().Err(err).Msg("uploader: описание от модели не получено, используем шаблон")
		return FallbackDescription(material)
	}
	desc = strings.TrimSpace(desc)
	if utf8.RuneCountInString(desc) < minDescriptionRunes {
		s.log.Warn().Int("length", utf8.RuneCountInString(desc)).Msg("uploader: описание от модели слишком короткое, используем шаблон")
		return FallbackDescription(material)
	}
	return desc
}

func (s *Service) publish(ctx context.Context, stored domain.StoredMaterial) {
	if len(s.publishers) == 0 {
		return
	}
	event := domain.MaterialEvent{
		EventID:     uuid.NewString(),
		MaterialID:  stored.ID,
		Title:       stored.Title,
		Description: stored.Description,
		Price:       stored.Price,
		Featured:    stored.IsFeatured,
		Tags:        stored.Tags,
		Link:        stored.OriginalLink,
		PublishedAt: s.now().UTC(),
	}
	for _, p := range s.publishers {
		if err := p.Publish(ctx, event); err != nil {
			s.log.Warn().Err(err).Int64("id", stored.ID).Msg("uploader: не удалось отправить событие о материале")
		}
	}
}

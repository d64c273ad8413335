package curriculum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/lesson-bot/internal/content"
)

// Import creates the loaded modules and lessons that the store does not have
// yet. A lesson's questions are only created together with the lesson, so
// importing the same bundles twice changes nothing. Empty photos get
// defaultPhoto.
func (l *Loader) Import(ctx context.Context, store content.Store, defaultPhoto string) (ImportResult, error) {
	var res ImportResult
	for _, b := range l.AllBundles() {
		if err := importBundle(ctx, store, b, defaultPhoto, &res); err != nil {
			return res, fmt.Errorf("import module %s: %w", b.Code, err)
		}
	}
	slog.Info("curriculum imported", "modules", res.Modules, "lessons", res.Lessons, "questions", res.Questions)
	return res, nil
}

func importBundle(ctx context.Context, store content.Store, b Bundle, defaultPhoto string, res *ImportResult) error {
	_, err := store.GetModule(ctx, b.Code)
	switch {
	case errors.Is(err, content.ErrNotFound):
		m := content.Module{Code: b.Code, Text: b.Text, Photo: orDefault(b.Photo, defaultPhoto)}
		if _, err := store.CreateModule(ctx, m); err != nil {
			return err
		}
		res.Modules++
	case err != nil:
		return err
	}

	for _, bl := range b.Lessons {
		code := content.LessonCode(b.Code, bl.Number)
		_, err := store.GetLesson(ctx, code)
		if err == nil {
			continue
		}
		if !errors.Is(err, content.ErrNotFound) {
			return err
		}

		lesson, err := store.CreateLesson(ctx, content.Lesson{
			ModuleCode: b.Code,
			Code:       code,
			Number:     bl.Number,
			Text:       bl.Text,
			Photo:      orDefault(bl.Photo, defaultPhoto),
			VideoURL:   bl.VideoURL,
			NotesURL:   bl.NotesURL,
		})
		if err != nil {
			return fmt.Errorf("create lesson %s: %w", code, err)
		}
		res.Lessons++

		for _, bq := range bl.Questions {
			q := content.Question{
				LessonCode: lesson.Code,
				Text:       bq.Text,
				Options:    bq.Options,
				Correct:    bq.Correct,
				Photo:      orDefault(bq.Photo, defaultPhoto),
			}
			if _, err := store.CreateQuestion(ctx, q); err != nil {
				return fmt.Errorf("create question for %s: %w", code, err)
			}
			res.Questions++
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

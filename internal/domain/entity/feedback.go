package entity

import "fmt"

// Category is the discrete squat depth judgment.
type Category string

const (
	CategoryTooLow      Category = "TOO_LOW"
	CategoryPerfect     Category = "PERFECT"
	CategoryAlmostThere Category = "ALMOST_THERE"
	CategoryTooHigh     Category = "TOO_HIGH"
)

// Categories in ascending knee-angle order.
var Categories = []Category{CategoryTooLow, CategoryPerfect, CategoryAlmostThere, CategoryTooHigh}

// Message is the overlay text shown for the category.
func (c Category) Message() string {
	switch c {
	case CategoryTooLow:
		return "Too Low! Raise Your Hips"
	case CategoryPerfect:
		return "Perfect Squat!"
	case CategoryAlmostThere:
		return "Almost There! Go Lower"
	case CategoryTooHigh:
		return "Too High! Lower Your Hips"
	default:
		return string(c)
	}
}

// Positive reports whether the category is shown in the positive color.
func (c Category) Positive() bool {
	return c == CategoryPerfect
}

// FeedbackResult is the classification of one averaged knee angle.
type FeedbackResult struct {
	Category Category `json:"category"`
	Accuracy int      `json:"accuracy"`
}

func (r FeedbackResult) String() string {
	return fmt.Sprintf("%s (%d%%)", r.Category.Message(), r.Accuracy)
}

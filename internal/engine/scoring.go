package engine

// Result is the score of a session. Locked slots are excluded from Total.
type Result struct {
	Score    int `json:"score"`
	Total    int `json:"total"`
	Accuracy int `json:"accuracy"`
}

// ReviewItem is the correctness overlay of one loaded slot.
type ReviewItem struct {
	Slot         int    `json:"slot"`
	Selected     *int   `json:"selected,omitempty"`
	CorrectIndex int    `json:"correct_index"`
	IsCorrect    bool   `json:"is_correct"`
	Explanation  string `json:"explanation"`
	Bookmarked   bool   `json:"bookmarked"`
}

// Score counts correct answers over loaded slots. Unanswered loaded slots count
// as wrong. Accuracy is rounded half-up to a whole percent.
func Score(slots []Slot, answers map[int]int) Result {
	var r Result
	for i, s := range slots {
		if s.State != SlotLoaded {
			continue
		}
		r.Total++
		if opt, ok := answers[i]; ok && opt == s.Question.CorrectAnswerIndex {
			r.Score++
		}
	}
	r.Accuracy = accuracy(r.Score, r.Total)
	return r
}

func accuracy(score, total int) int {
	if total == 0 {
		return 0
	}
	return (score*200 + total) / (total * 2)
}

// Review builds the per-slot correctness overlay for loaded slots.
func Review(slots []Slot, answers map[int]int, bookmarked func(int) bool) []ReviewItem {
	items := make([]ReviewItem, 0, len(slots))
	for i, s := range slots {
		if s.State != SlotLoaded {
			continue
		}
		item := ReviewItem{
			Slot:         i,
			CorrectIndex: s.Question.CorrectAnswerIndex,
			Explanation:  s.Question.Explanation,
		}
		if opt, ok := answers[i]; ok {
			item.Selected = &opt
			item.IsCorrect = opt == s.Question.CorrectAnswerIndex
		}
		if bookmarked != nil {
			item.Bookmarked = bookmarked(i)
		}
		items = append(items, item)
	}
	return items
}

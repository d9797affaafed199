package sentiment

import (
	"math"
	"strings"
	"unicode"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
)

// Polarity thresholds on the compound score of a single statement.
const (
	statementThreshold = 0.05
	// aggregateThreshold is wider so a whole conversation needs a clear lean.
	aggregateThreshold = 0.35
	// smoothing keeps a single weak keyword from saturating the compound score.
	smoothing = 4.0
)

var keywordBuckets = map[conversation.Label][]string{
	conversation.Positive: {
		"happy", "glad", "great", "awesome", "amazing", "love", "thanks", "thank you", "wonderful",
		"excellent", "perfect", "fantastic", "appreciate", "helpful", "pleased", "excited", "relieved",
		"good", "nice", "lol", "haha", "can't wait", "well done", "brilliant",
		"开心", "高兴", "快乐", "太好了", "太棒了", "真棒", "谢谢", "喜欢", "满意", "感谢", "期待", "放心",
	},
	conversation.Negative: {
		"angry", "furious", "rage", "mad", "annoyed", "upset", "sad", "unhappy", "depressed", "hate",
		"terrible", "awful", "horrible", "worst", "disappointed", "frustrated", "frustrating", "delay",
		"broken", "useless", "ridiculous", "unacceptable", "cry", "hurt", "worried", "anxious", "lonely",
		"fed up", "sick of", "waste of time",
		"生气", "愤怒", "难过", "伤心", "失望", "沮丧", "痛苦", "烦死", "受够了", "气死", "糟糕", "委屈",
	},
}

var intensifiers = map[string]float64{
	"very": 0.5, "really": 0.5, "so": 0.3, "extremely": 1, "totally": 0.5, "absolutely": 0.8,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true, "didn't": true, "isn't": true,
	"wasn't": true, "can't": true, "won't": true, "doesn't": true, "hardly": true,
}

// Analyze scores a single statement. The result is deterministic for a given text.
func Analyze(text string) conversation.SentimentResult {
	pos, neg := scoreText(text)
	if pos == 0 && neg == 0 {
		return conversation.SentimentResult{Label: conversation.Neutral, Score: 1, Compound: 0}
	}

	compound := (pos - neg) / (pos + neg + smoothing)
	compound = clamp(compound, -1, 1)

	switch {
	case compound >= statementThreshold:
		return conversation.SentimentResult{Label: conversation.Positive, Score: round3(0.5 + compound/2), Compound: round3(compound)}
	case compound <= -statementThreshold:
		return conversation.SentimentResult{Label: conversation.Negative, Score: round3(0.5 - compound/2), Compound: round3(compound)}
	default:
		return conversation.SentimentResult{Label: conversation.Neutral, Score: round3(1 - math.Abs(compound)), Compound: round3(compound)}
	}
}

// Aggregate labels a conversation from the compound scores of its user turns.
// An empty input is neutral.
func Aggregate(compounds []float64) conversation.OverallSentiment {
	if len(compounds) == 0 {
		return conversation.OverallSentiment{Label: conversation.Neutral}
	}

	var sum float64
	for _, c := range compounds {
		sum += c
	}
	avg := sum / float64(len(compounds))

	label := conversation.Neutral
	if avg >= aggregateThreshold {
		label = conversation.Positive
	} else if avg <= -aggregateThreshold {
		label = conversation.Negative
	}

	return conversation.OverallSentiment{
		Label:           label,
		AverageCompound: round3(avg),
		UserTurns:       len(compounds),
	}
}

func scoreText(text string) (pos, neg float64) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return 0, 0
	}

	tokens := tokenize(normalized)
	padded := " " + strings.Join(tokens, " ") + " "

	for label, keywords := range keywordBuckets {
		var total float64
		for _, kw := range keywords {
			switch {
			case !isASCII(kw):
				total += 3 * float64(strings.Count(normalized, kw))
			case strings.Contains(kw, " "):
				total += 3 * float64(strings.Count(padded, " "+kw+" "))
			}
		}
		addScore(label, total, &pos, &neg)
	}

	for i, tok := range tokens {
		label, ok := singleWordLabel(tok)
		if !ok {
			continue
		}
		weight := 3.0
		if i > 0 {
			weight += intensifiers[tokens[i-1]]
		}
		if negatedAt(tokens, i) {
			label = flip(label)
			weight /= 2
		}
		addScore(label, weight, &pos, &neg)
	}

	// Exclamation marks amplify whichever side already dominates.
	if exclamations := strings.Count(text, "!") + strings.Count(text, "！"); exclamations > 0 {
		boost := math.Min(float64(exclamations), 3)
		if pos > neg {
			pos += boost
		} else if neg > pos {
			neg += boost
		}
	}
	return pos, neg
}

var singleWords = func() map[string]conversation.Label {
	out := make(map[string]conversation.Label)
	for label, keywords := range keywordBuckets {
		for _, kw := range keywords {
			if isASCII(kw) && !strings.Contains(kw, " ") {
				out[kw] = label
			}
		}
	}
	return out
}()

func singleWordLabel(tok string) (conversation.Label, bool) {
	label, ok := singleWords[tok]
	return label, ok
}

func negatedAt(tokens []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-2; j-- {
		if negations[tokens[j]] {
			return true
		}
	}
	return false
}

func flip(label conversation.Label) conversation.Label {
	if label == conversation.Positive {
		return conversation.Negative
	}
	return conversation.Positive
}

func addScore(label conversation.Label, v float64, pos, neg *float64) {
	switch label {
	case conversation.Positive:
		*pos += v
	case conversation.Negative:
		*neg += v
	}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

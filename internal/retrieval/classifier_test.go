package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternClassifier_ErrorCodesFavorBM25(t *testing.T) {
	tests := []string{"ERR_CONNECTION_REFUSED", "err_connection_refused", "E0001", "E12345", "ERR123", "NullPointerException"}

	c := NewPatternClassifier()
	for _, query := range tests {
		t.Run(query, func(t *testing.T) {
			assert.Equal(t, weightsLexical, c.Weights(query))
		})
	}
}

func TestPatternClassifier_QuotedPhrasesFavorBM25(t *testing.T) {
	assert.Equal(t, weightsLexical, NewPatternClassifier().Weights(`"authentication middleware"`))
	assert.Equal(t, weightsLexical, NewPatternClassifier().Weights(`'exact phrase match'`))
}

func TestPatternClassifier_FilePathsFavorBM25(t *testing.T) {
	tests := []string{"internal/auth/handler.go", "src/components/Button.tsx", "README.md", "config.yaml"}

	c := NewPatternClassifier()
	for _, query := range tests {
		t.Run(query, func(t *testing.T) {
			assert.Equal(t, weightsLexical, c.Weights(query))
		})
	}
}

func TestPatternClassifier_TechnicalIdentifiersFavorBM25(t *testing.T) {
	tests := []string{"getUserById", "handle_auth", "MAX_RETRY_COUNT", "HandlerFunc"}

	c := NewPatternClassifier()
	for _, query := range tests {
		t.Run(query, func(t *testing.T) {
			assert.Equal(t, weightsLexical, c.Weights(query))
		})
	}
}

func TestPatternClassifier_QuestionsFavorSemantic(t *testing.T) {
	tests := []string{"how does authentication work", "explain the search algorithm", "what is reciprocal rank fusion"}

	c := NewPatternClassifier()
	for _, query := range tests {
		t.Run(query, func(t *testing.T) {
			assert.Equal(t, weightsSemantic, c.Weights(query))
		})
	}
}

func TestPatternClassifier_LongQueriesWithoutQuestionWordsFavorSemantic(t *testing.T) {
	assert.Equal(t, weightsSemantic, NewPatternClassifier().Weights("code that handles retry backoff"))
}

func TestPatternClassifier_ShortAmbiguousQueriesAreMixed(t *testing.T) {
	assert.Equal(t, weightsMixed, NewPatternClassifier().Weights("authentication"))
	assert.Equal(t, weightsMixed, NewPatternClassifier().Weights("useEffect cleanup"))
}

func TestPatternClassifier_EmptyQueryIsMixed(t *testing.T) {
	assert.Equal(t, weightsMixed, NewPatternClassifier().Weights("   "))
}

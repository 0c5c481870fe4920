package resultstore

import (
	"context"
	"fmt"
	"time"

	"github.com/meywd/benchforge/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTimeSeriesStore implements TimeSeriesStore on a MongoDB collection.
// Each document is one point: a timestamp, a tag set, and the raw numeric
// fields the metrics are derived from.
type MongoTimeSeriesStore struct {
	collection *mongo.Collection
}

// NewMongoTimeSeriesStore creates a MongoTimeSeriesStore.
func NewMongoTimeSeriesStore(db *mongo.Database, collectionName string) *MongoTimeSeriesStore {
	return &MongoTimeSeriesStore{
		collection: db.Collection(collectionName),
	}
}

// pointDoc is the stored shape of one time-series point.
type pointDoc struct {
	Timestamp  time.Time         `bson:"timestamp"`
	Tags       map[string]string `bson:"tags"`
	DurationMs int64             `bson:"duration_ms"`
	Tokens     int               `bson:"tokens"`
	Success    int               `bson:"success"` // 1 for completed, 0 otherwise
	Score      *float64          `bson:"score,omitempty"`
}

// RecordExecutionPoint writes the derived point for one execution result.
func (s *MongoTimeSeriesStore) RecordExecutionPoint(ctx context.Context, result *models.ExecutionResult) error {
	doc := pointDoc{
		Timestamp:  result.EndedAt,
		Tags:       executionTags(result),
		DurationMs: result.Duration.Milliseconds(),
	}
	if result.Status == models.ExecutionStatusCompleted {
		doc.Success = 1
		if result.Response != nil {
			doc.Tokens = result.Response.Usage.TotalTokens
		}
	}
	_, err := s.collection.InsertOne(ctx, doc)
	return err
}

// RecordScorePoint writes the derived point for one execution score.
func (s *MongoTimeSeriesStore) RecordScorePoint(ctx context.Context, score *models.ExecutionScore, result *models.ExecutionResult) error {
	v := score.OverallScore
	doc := pointDoc{
		Timestamp: score.ScoredAt,
		Tags:      executionTags(result),
		Score:     &v,
	}
	_, err := s.collection.InsertOne(ctx, doc)
	return err
}

// metricAccumulators maps a metric to its bucket accumulator expressions.
var metricAccumulators = map[Metric]bson.D{
	MetricExecutionCount: {{Key: "value", Value: bson.M{"$sum": 1}}},
	MetricSuccessRate:    {{Key: "value", Value: bson.M{"$avg": "$success"}}},
	MetricErrorRate:      {{Key: "value", Value: bson.M{"$avg": bson.M{"$subtract": bson.A{1, "$success"}}}}},
	MetricAvgDuration:    {{Key: "value", Value: bson.M{"$avg": "$duration_ms"}}},
	MetricTokenUsage:     {{Key: "value", Value: bson.M{"$sum": "$tokens"}}},
	MetricAvgScore:       {{Key: "value", Value: bson.M{"$avg": "$score"}}},
}

var granularityUnits = map[Granularity]string{
	GranularityMinute: "minute",
	GranularityHour:   "hour",
	GranularityDay:    "day",
	GranularityWeek:   "week",
	GranularityMonth:  "month",
}

// Query returns bucketed points for one metric at the chosen granularity,
// optionally narrowed by tag filters.
func (s *MongoTimeSeriesStore) Query(ctx context.Context, query TimeSeriesQuery) ([]TimeSeriesPoint, error) {
	acc, ok := metricAccumulators[query.Metric]
	if !ok {
		return nil, fmt.Errorf("unknown time-series metric %q", query.Metric)
	}
	unit, ok := granularityUnits[query.Granularity]
	if !ok {
		return nil, fmt.Errorf("unknown granularity %q", query.Granularity)
	}

	match := bson.M{}
	if !query.From.IsZero() || !query.To.IsZero() {
		ts := bson.M{}
		if !query.From.IsZero() {
			ts["$gte"] = query.From
		}
		if !query.To.IsZero() {
			ts["$lt"] = query.To
		}
		match["timestamp"] = ts
	}
	for k, v := range query.Tags {
		match["tags."+k] = v
	}
	// Score points only carry the score field; everything else derives
	// from execution points.
	if query.Metric == MetricAvgScore {
		match["score"] = bson.M{"$ne": nil}
	} else {
		match["score"] = bson.M{"$eq": nil}
	}

	group := bson.D{
		{Key: "_id", Value: bson.M{"$dateTrunc": bson.M{"date": "$timestamp", "unit": unit}}},
		{Key: "count", Value: bson.M{"$sum": 1}},
	}
	group = append(group, acc...)

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$group", Value: group}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline, options.Aggregate())
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var points []TimeSeriesPoint
	for cursor.Next(ctx) {
		var doc struct {
			Bucket time.Time `bson:"_id"`
			Count  int64     `bson:"count"`
			Value  float64   `bson:"value"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		points = append(points, TimeSeriesPoint{
			Timestamp: doc.Bucket,
			Value:     doc.Value,
			Count:     doc.Count,
		})
	}
	return points, cursor.Err()
}

func executionTags(result *models.ExecutionResult) map[string]string {
	return map[string]string{
		"task_id":         result.TaskID,
		"provider_id":     result.ProviderID,
		"model_id":        result.ModelID,
		"organization_id": result.Context.OrganizationID,
		"status":          string(result.Status),
	}
}

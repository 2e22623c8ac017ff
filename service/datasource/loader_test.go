package datasource

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"redcap-outlier-service/service/config"
	"redcap-outlier-service/service/models"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// stubLoader 记录调用次数的内存加载器
type stubLoader struct {
	codebook      []models.FieldMetadata
	forms         map[string]*models.Form
	codebookCalls int
	err           error
}

func (s *stubLoader) LoadCodebook(ctx context.Context) ([]models.FieldMetadata, error) {
	s.codebookCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.codebook, nil
}

func (s *stubLoader) LoadForms(ctx context.Context, codebook []models.FieldMetadata) (map[string]*models.Form, error) {
	return s.forms, nil
}

func (s *stubLoader) HealthCheck(ctx context.Context) error { return nil }
func (s *stubLoader) Close(ctx context.Context) error       { return nil }
func (s *stubLoader) GetType() string                       { return "stub" }

// unreachableRedis 指向无服务端口的客户端，用于验证降级行为
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestLoadProject(t *testing.T) {
	stub := &stubLoader{
		codebook: []models.FieldMetadata{{FieldName: "idade", FormName: "patients", FieldType: "text"}},
		forms:    map[string]*models.Form{"patients": models.NewForm("patients", []string{"record_id"})},
	}

	project, err := LoadProject(context.Background(), stub)
	require.NoError(t, err)
	assert.Equal(t, "stub", project.Source)
	assert.Len(t, project.Codebook, 1)
	assert.Contains(t, project.Forms, "patients")

	stub.err = errors.New("boom")
	_, err = LoadProject(context.Background(), stub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "加载字典失败")
}

func TestCodebookCache_DegradesWhenRedisUnavailable(t *testing.T) {
	stub := &stubLoader{codebook: []models.FieldMetadata{{FieldName: "cpf", FormName: "identificacao"}}}
	client := unreachableRedis()
	defer client.Close()

	cache := NewCodebookCache(stub, client, cacheKeyPrefix+"test", time.Minute)
	codebook, err := cache.LoadCodebook(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cpf", codebook[0].FieldName)
	assert.Equal(t, 1, stub.codebookCalls)
	assert.Equal(t, "stub", cache.GetType())

	assert.Error(t, cache.Invalidate(context.Background()))
}

func TestCodebookCache_PropagatesLoaderError(t *testing.T) {
	stub := &stubLoader{err: errors.New("api down")}
	client := unreachableRedis()
	defer client.Close()

	_, err := NewCodebookCache(stub, client, "k", time.Minute).LoadCodebook(context.Background())
	assert.EqualError(t, err, "api down")
}

func TestNewProjectLoader_UnknownSource(t *testing.T) {
	_, err := NewProjectLoader(context.Background(), &config.Config{DataSource: "csv"}, nil)
	assert.Error(t, err)

	loader, err := NewProjectLoader(context.Background(), &config.Config{DataSource: config.SourceRedcap}, unreachableRedis())
	require.NoError(t, err)
	_, ok := loader.(*CodebookCache)
	assert.True(t, ok)
}

func TestDocumentsToForm(t *testing.T) {
	visit := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	docs := []bson.D{
		{{Key: "record_id", Value: "1"}, {Key: "idade", Value: int32(40)}, {Key: "peso", Value: math.NaN()}},
		{{Key: "record_id", Value: "2"}, {Key: "data_visita", Value: bson.NewDateTimeFromTime(visit)}, {Key: "idade", Value: nil}},
	}

	form := DocumentsToForm("patients", docs)
	assert.Equal(t, "patients", form.Name)
	assert.Equal(t, []string{"record_id", "idade", "peso", "data_visita"}, form.Columns)
	require.Len(t, form.Rows, 2)
	assert.Equal(t, int32(40), form.Rows[0]["idade"])
	assert.Nil(t, form.Rows[0]["peso"])
	assert.True(t, visit.Equal(form.Rows[1]["data_visita"].(time.Time)))
	assert.True(t, models.IsNull(form.Rows[1]["idade"]))
}

func TestBSONString(t *testing.T) {
	entry := bson.M{"field_name": "idade", "text_validation_min": math.NaN(), "text_validation_max": 120.0}
	assert.Equal(t, "idade", bsonString(entry, "field_name"))
	assert.Equal(t, "", bsonString(entry, "text_validation_min"))
	assert.Equal(t, "120", bsonString(entry, "text_validation_max"))
	assert.Equal(t, "", bsonString(entry, "branching_logic"))
}

/*
 * @module service/datasource/mongo_loader
 * @description 文档库项目加载器，每个集合对应一张表单，_metadata 集合保存项目字典
 * @architecture 适配器模式 - 将 BSON 文档转换为表单数据表
 * @stateFlow Connect -> Ping -> _metadata.codebook -> 其余集合逐个 Find -> Form
 * @rules 读取时排除 _id；保持文档字段顺序作为列顺序；NaN 浮点数按空值处理；日期转为 time.Time
 * @dependencies go.mongodb.org/mongo-driver/v2
 * @refs loader.go, service/models/form.go
 */

package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"redcap-outlier-service/service/config"
	"redcap-outlier-service/service/models"

	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// metadataDocument _metadata 集合中的项目元数据文档
// codebook 以宽松的 bson.M 读取，空单元格可能以 NaN 浮点数存储
type metadataDocument struct {
	ProjectID string   `bson:"project_id,omitempty"`
	Codebook  []bson.M `bson:"codebook"`
}

// MongoLoader 文档库加载器
type MongoLoader struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoLoader 连接文档库并校验连通性
func NewMongoLoader(ctx context.Context, cfg config.MongoConfig) (*MongoLoader, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("连接MongoDB失败: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("MongoDB不可达: %w", err)
	}

	slog.Info("MongoDB连接成功", "database", cfg.Database)
	return &MongoLoader{client: client, db: client.Database(cfg.Database)}, nil
}

// GetType 数据来源类型
func (m *MongoLoader) GetType() string {
	return config.SourceMongo
}

// HealthCheck Ping 主节点
func (m *MongoLoader) HealthCheck(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Close 断开连接
func (m *MongoLoader) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// LoadCodebook 读取 _metadata 集合的第一份文档
func (m *MongoLoader) LoadCodebook(ctx context.Context) ([]models.FieldMetadata, error) {
	var doc metadataDocument
	err := m.db.Collection(models.MetadataCollectionName).FindOne(ctx, bson.D{}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s 集合为空", models.ErrSchemaMalformed, models.MetadataCollectionName)
	}
	if err != nil {
		return nil, fmt.Errorf("读取项目元数据失败: %w", err)
	}

	codebook := make([]models.FieldMetadata, 0, len(doc.Codebook))
	for _, entry := range doc.Codebook {
		codebook = append(codebook, models.FieldMetadata{
			FieldName:       bsonString(entry, models.CodebookFieldName),
			FormName:        bsonString(entry, models.CodebookFormName),
			FieldType:       bsonString(entry, models.CodebookFieldType),
			ValidationType:  bsonString(entry, models.CodebookValidationType),
			ValidationMin:   bsonString(entry, models.CodebookValidationMin),
			ValidationMax:   bsonString(entry, models.CodebookValidationMax),
			RequiredField:   bsonString(entry, models.CodebookRequiredField),
			BranchingLogic:  bsonString(entry, models.CodebookBranchingLogic),
			Identifier:      bsonString(entry, models.CodebookIdentifier),
			FieldAnnotation: bsonString(entry, models.CodebookFieldAnnotation),
		})
	}
	return codebook, nil
}

// bsonString 读取字符串值，空值与 NaN 返回空串
func bsonString(entry bson.M, key string) string {
	value := normalizeBSON(entry[key])
	if value == nil {
		return ""
	}
	return cast.ToString(value)
}

// LoadForms 读取除 _metadata 外的全部集合
func (m *MongoLoader) LoadForms(ctx context.Context, codebook []models.FieldMetadata) (map[string]*models.Form, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("列出集合失败: %w", err)
	}

	forms := make(map[string]*models.Form, len(names))
	projection := options.Find().SetProjection(bson.D{{Key: "_id", Value: 0}})
	for _, name := range names {
		if name == models.MetadataCollectionName {
			continue
		}

		cursor, err := m.db.Collection(name).Find(ctx, bson.D{}, projection)
		if err != nil {
			return nil, fmt.Errorf("查询集合 %s 失败: %w", name, err)
		}
		var docs []bson.D
		if err := cursor.All(ctx, &docs); err != nil {
			return nil, fmt.Errorf("读取集合 %s 失败: %w", name, err)
		}

		forms[name] = DocumentsToForm(name, docs)
		slog.Debug("集合加载完成", "collection", name, "documents", len(docs))
	}

	return forms, nil
}

// DocumentsToForm 将 BSON 文档列表转换为表单数据表，列顺序取首次出现的顺序
func DocumentsToForm(name string, docs []bson.D) *models.Form {
	form := models.NewForm(name, []string{})
	for _, doc := range docs {
		row := make(map[string]interface{}, len(doc))
		for _, elem := range doc {
			if !form.HasColumn(elem.Key) {
				form.Columns = append(form.Columns, elem.Key)
			}
			row[elem.Key] = normalizeBSON(elem.Value)
		}
		form.Rows = append(form.Rows, row)
	}
	return form
}

func normalizeBSON(value interface{}) interface{} {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) {
			return nil
		}
		return v
	case bson.DateTime:
		return v.Time().UTC()
	case bson.Null, bson.Undefined:
		return nil
	default:
		return v
	}
}

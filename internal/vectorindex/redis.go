package vectorindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/leve-labs/trailmatch/internal/db"
)

// Redis is an index backed by Redis FT.SEARCH KNN over hash documents.
// Metadata fields are indexed as TAG fields so status and difficulty
// filters run server-side inside the KNN pre-filter.
type Redis struct {
	store     redisStore
	indexName string
	keyPrefix string
	dim       int
	algo      db.VectorAlgorithm
	tagFields []string
}

type redisStore interface {
	db.HashStore
	db.IndexManager
	db.Searcher
}

// RedisOptions configures a Redis-backed index.
type RedisOptions struct {
	IndexName string
	KeyPrefix string
	Dim       int
	Algo      db.VectorAlgorithm // defaults to FLAT
	TagFields []string           // metadata keys indexed for filtering
}

// NewRedis creates a Redis-backed index and ensures its FT index
// exists. An index left over from a previous run is reused as-is.
func NewRedis(ctx context.Context, store redisStore, opts RedisOptions) (*Redis, error) {
	if opts.IndexName == "" {
		return nil, errors.New("index name is required")
	}
	if opts.Dim <= 0 {
		return nil, errors.New("dim must be positive")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = opts.IndexName + ":"
	}
	if opts.Algo == "" {
		opts.Algo = db.VectorFlat
	}
	if len(opts.TagFields) == 0 {
		opts.TagFields = []string{"status", "difficulty"}
	}

	r := &Redis{
		store:     store,
		indexName: opts.IndexName,
		keyPrefix: opts.KeyPrefix,
		dim:       opts.Dim,
		algo:      opts.Algo,
		tagFields: opts.TagFields,
	}

	if err := r.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Redis) ensureIndex(ctx context.Context) error {
	fields := make([]db.IndexField, 0, len(r.tagFields)+1)
	for _, name := range r.tagFields {
		fields = append(fields, db.IndexField{
			Name:         name,
			Type:         db.IndexFieldTag,
			TagSeparator: ",",
		})
	}
	fields = append(fields, db.IndexField{
		Name:           "vector",
		Type:           db.IndexFieldVector,
		VectorAlgo:     r.algo,
		VectorDim:      r.dim,
		VectorDistance: db.DistanceCosine,
	})

	def := &db.IndexDefinition{
		Name:     r.indexName,
		Prefixes: []string{r.keyPrefix},
		Fields:   fields,
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid index definition: %w", err)
	}

	err := r.store.CreateIndex(ctx, def)
	if err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.indexName, err)
	}
	return nil
}

// Upsert writes items as hashes in a single pipelined round-trip.
func (r *Redis) Upsert(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	hashes := make([]db.HashSetItem, 0, len(items))
	for _, it := range items {
		if err := checkDim(len(it.Vector), r.dim); err != nil {
			return err
		}

		fields := map[string]string{
			"vector": encodeVector(Normalize(it.Vector)),
		}
		for k, v := range it.Metadata {
			fields[k] = v
		}
		hashes = append(hashes, db.HashSetItem{
			Key:    r.keyPrefix + it.ID,
			Fields: fields,
		})
	}

	return r.store.HSetMulti(ctx, hashes)
}

// Delete removes an item by ID.
func (r *Redis) Delete(ctx context.Context, id string) error {
	return r.store.Del(ctx, r.keyPrefix+id)
}

// Search runs a KNN query with metadata tag filters applied server-side.
func (r *Redis) Search(ctx context.Context, vector []float32, k int, filters Filters) ([]Match, error) {
	if err := checkDim(len(vector), r.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	returnFields := append([]string{"__vector_score"}, r.tagFields...)

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName,
		Filters:      db.TagFilters(filters),
		Vector:       Normalize(vector),
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	matches := make([]Match, 0, len(res.Entries))
	for _, e := range res.Entries {
		matches = append(matches, Match{
			ID:       strings.TrimPrefix(e.Key, r.keyPrefix),
			Score:    e.Score,
			Metadata: e.Fields,
		})
	}
	return matches, nil
}

// Size returns the number of indexed documents.
func (r *Redis) Size(ctx context.Context) (int, error) {
	return r.store.SearchCount(ctx, r.indexName, "*")
}

func encodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

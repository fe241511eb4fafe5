package store

var (
	bPosts        = []byte("posts")         // id -> post json
	bPostSlug     = []byte("post_slug")     // slug -> id
	bCategories   = []byte("categories")    // id -> category json
	bCategorySlug = []byte("category_slug") // slug -> id
	bHashtags     = []byte("hashtags")      // id -> hashtag json
	bHashtagSlug  = []byte("hashtag_slug")  // slug -> id
	bReactions    = []byte("reactions")     // postID -> sub-bucket(type -> count)
	bMedia        = []byte("media")         // path -> media json

	bIdxPublished = []byte("idx_published") // timeKey -> 1, every post
	bIdxCat       = []byte("idx_cat")       // categoryID -> sub-bucket(timeKey -> 1)
	bIdxTag       = []byte("idx_tag")       // hashtagID -> sub-bucket(timeKey -> 1)
)

var topLevelBuckets = [][]byte{
	bPosts, bPostSlug,
	bCategories, bCategorySlug,
	bHashtags, bHashtagSlug,
	bReactions, bMedia,
	bIdxPublished, bIdxCat, bIdxTag,
}

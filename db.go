package citethread

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const articleDBPath = "database/articles.db"

// Article is one stored alert article. References stays NULL until the
// CrossRef lookup resolved it; a resolved article with no known cited works
// carries the literal "N/A" sentinel instead.
type Article struct {
	ID           int64
	Title        string
	Author       string
	Link         string
	Abstract     string
	CitedAuthor  string
	SaveLink     string
	DOI          sql.NullString
	References   sql.NullString
	ReceivedDate string
}

// openArticleDB opens the SQLite article store, creating the schema on first
// use. The busy timeout makes concurrent resolver writes wait for the lock
// instead of failing with "database is locked".
func openArticleDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY,
		Title TEXT NOT NULL,
		Author TEXT,
		Link TEXT,
		Abstract TEXT,
		CitedAuthor TEXT,
		SaveLink TEXT,
		DOI TEXT,
		ArticleReferences TEXT,
		ReceivedDate TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_title ON articles(Title);
	CREATE INDEX IF NOT EXISTS idx_articles_received ON articles(ReceivedDate);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// insertArticle stores one extracted article. Re-running extraction over the
// same alerts is a no-op thanks to the unique title index.
func insertArticle(db *sql.DB, article Article) error {
	insertSQL := `
	INSERT OR IGNORE INTO articles (Title, Author, Link, Abstract, CitedAuthor, SaveLink, ReceivedDate)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(insertSQL, article.Title, article.Author, article.Link,
		article.Abstract, article.CitedAuthor, article.SaveLink, article.ReceivedDate)
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}
	return nil
}

// updateArticleReferences stores the DOI and comma-joined reference list
// resolved for an article.
func updateArticleReferences(db *sql.DB, title, doi string, references []string) error {
	updateSQL := `
	UPDATE articles
	SET DOI = ?, ArticleReferences = ?
	WHERE Title = ?
	`

	_, err := db.Exec(updateSQL, doi, strings.Join(references, ", "), title)
	if err != nil {
		return fmt.Errorf("failed to update references: %w", err)
	}
	return nil
}

// articlesBetween loads the articles received in the inclusive date range.
// Empty bounds load everything.
func articlesBetween(db *sql.DB, startDate, endDate string) ([]Article, error) {
	query := "SELECT id, Title, Author, Link, Abstract, CitedAuthor, SaveLink, DOI, ArticleReferences, ReceivedDate FROM articles"
	var args []any
	if startDate != "" && endDate != "" {
		query += " WHERE ReceivedDate BETWEEN ? AND ?"
		args = append(args, startDate, endDate)
	}
	query += " ORDER BY id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		err := rows.Scan(&a.ID, &a.Title, &a.Author, &a.Link, &a.Abstract,
			&a.CitedAuthor, &a.SaveLink, &a.DOI, &a.References, &a.ReceivedDate)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// articlesWithoutReferences loads the articles whose cited works were never resolved.
func articlesWithoutReferences(db *sql.DB) ([]Article, error) {
	rows, err := db.Query(`
		SELECT id, Title, Author, Link, Abstract, CitedAuthor, SaveLink, DOI, ArticleReferences, ReceivedDate
		FROM articles WHERE ArticleReferences IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		err := rows.Scan(&a.ID, &a.Title, &a.Author, &a.Link, &a.Abstract,
			&a.CitedAuthor, &a.SaveLink, &a.DOI, &a.References, &a.ReceivedDate)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// DocumentsFromArticles turns stored articles into engine documents, assigning
// each a stable index for the run and splitting the comma-joined reference
// lists. Articles with a NULL reference field keep a nil list.
func DocumentsFromArticles(articles []Article) []Document {
	docs := make([]Document, len(articles))
	for i, article := range articles {
		doc := Document{Index: i, Title: article.Title}
		if article.References.Valid {
			for _, ref := range strings.Split(article.References.String, ",") {
				doc.References = append(doc.References, strings.TrimSpace(ref))
			}
		}
		docs[i] = doc
	}
	return docs
}

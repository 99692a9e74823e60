package scanner

import (
	"net/url"
	"strings"
	"time"

	"commentbot/packages/config"
	"commentbot/packages/domain"

	"github.com/PuerkitoBio/goquery"
)

// ParsePosts extracts candidate posts from rendered feed HTML. Selectors come
// from the policy so feed markup drift is patched without code changes.
func ParsePosts(html string, sel config.FeedSelectors, baseURL string) ([]domain.CandidatePost, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	var posts []domain.CandidatePost
	doc.Find(sel.Post).Each(func(i int, s *goquery.Selection) {
		href, _ := s.Find(sel.Link).First().Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			return
		}

		text := cleanText(s.Find(sel.Text).Text())
		if text == "" {
			return
		}

		post := domain.CandidatePost{
			URL:    resolved.String(),
			Text:   text,
			Author: cleanText(s.Find(sel.Author).First().Text()),
			SeenAt: time.Now(),
		}
		s.Find(sel.Image).Each(func(i int, img *goquery.Selection) {
			if src, ok := img.Attr("src"); ok && strings.TrimSpace(src) != "" {
				post.ImageURLs = append(post.ImageURLs, strings.TrimSpace(src))
			}
		})
		posts = append(posts, post)
	})
	return posts, nil
}

func cleanText(raw string) string {
	re := strings.NewReplacer("\n", " ", "\t", " ", "\r", " ")
	return strings.Join(strings.Fields(re.Replace(raw)), " ")
}

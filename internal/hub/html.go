package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// searchHTML scrapes the registry's public search page. Used only when the
// JSON API is unreachable, so results carry less metadata than API records.
func (c *Client) searchHTML(ctx context.Context, query string, limit int) ([]Skill, error) {
	searchURL := fmt.Sprintf("%s/skills?q=%s", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry HTML search returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse registry HTML: %w", err)
	}
	return extractSkillCards(doc, limit), nil
}

func extractSkillCards(doc *goquery.Document, limit int) []Skill {
	var skills []Skill
	doc.Find(".skill-card").Each(func(_ int, s *goquery.Selection) {
		if len(skills) >= limit {
			return
		}
		slug := strings.TrimSpace(s.AttrOr("data-slug", ""))
		name := strings.TrimSpace(s.Find(".skill-card__name").Text())
		if slug == "" {
			// Fall back to the detail-page link: /skills/<slug>.
			if href, ok := s.Find("a").First().Attr("href"); ok {
				slug = strings.TrimSpace(strings.TrimPrefix(strings.TrimSuffix(href, "/"), "/skills/"))
			}
		}
		if slug == "" && name == "" {
			return
		}
		if slug == "" {
			slug = strings.ToLower(strings.ReplaceAll(name, " ", "-"))
		}
		skill := Skill{
			Slug:        slug,
			Name:        name,
			Description: strings.TrimSpace(s.Find(".skill-card__description").Text()),
			Author:      strings.TrimSpace(s.Find(".skill-card__author").Text()),
			Verified:    s.Find(".skill-card__verified").Length() > 0,
			Installs:    parseInstallCount(s.Find(".skill-card__installs").Text()),
		}
		if skill.Name == "" {
			skill.Name = skill.Slug
		}
		skills = append(skills, skill)
	})
	return skills
}

// parseInstallCount handles display forms like "1,234 installs" and "1.2k".
func parseInstallCount(text string) int {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.TrimSuffix(text, "installs")
	text = strings.ReplaceAll(text, ",", "")
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	mult := 1.0
	switch {
	case strings.HasSuffix(text, "k"):
		mult = 1000
		text = strings.TrimSuffix(text, "k")
	case strings.HasSuffix(text, "m"):
		mult = 1_000_000
		text = strings.TrimSuffix(text, "m")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0
	}
	return int(v * mult)
}

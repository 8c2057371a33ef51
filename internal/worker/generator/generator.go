// Package generator produces the synthetic social media posts the workers
// publish. Content is driven by a seeded source so every run of the demo
// shows the same traffic shape; only ids and timestamps differ.
package generator

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/surgeproject/surge/internal/common/slices"
)

var breakingNewsTemplates = []string{
	"BREAKING: Major tech announcement happening right now!",
	"🚨 URGENT: This changes everything in the industry",
	"JUST IN: Revolutionary breakthrough announced",
	"ALERT: Game-changing news just dropped",
	"BREAKING NEWS: Industry leaders respond to major announcement",
}

var viralContentTemplates = []string{
	"This is absolutely incredible! Everyone needs to see this",
	"Mind = blown 🤯 This is going to change everything",
	"I can't believe what I'm seeing right now",
	"This is the most amazing thing I've seen all year",
	"EVERYONE needs to know about this immediately",
	"This just made my entire day! Sharing with everyone",
	"I'm literally speechless... this is incredible",
}

var reactionTemplates = []string{
	"Wow, just saw the news about this!",
	"My thoughts on the latest announcement",
	"Here's what this means for all of us",
	"Quick take on today's big news",
	"This is exactly what we needed to hear",
}

var contentVariations = []string{
	"Just heard about this!",
	"This is happening now!",
	"Can't believe this!",
	"Update on the situation:",
	"Latest development:",
	"Breaking update:",
	"This just in:",
	"Major update:",
	"Important news:",
	"Quick update:",
}

var contentEmojis = []string{"🔥", "⚡", "🚀", "💯", "👀", "🎯", "💥", "🌟"}

var replyTargets = []string{"techguru", "newsbot", "someone", "user123", "admin"}

var trendingHashtags = []string{
	"#BreakingNews", "#TechNews", "#Innovation", "#GameChanger",
	"#Revolutionary", "#Trending", "#Viral", "#MustSee",
	"#Incredible", "#Amazing", "#Unbelievable", "#Shocking",
}

var techHashtags = []string{
	"#AI", "#MachineLearning", "#CloudComputing", "#BigData",
	"#IoT", "#Blockchain", "#Cybersecurity", "#DevOps",
	"#Serverless", "#Microservices", "#API", "#Database",
}

var generalHashtags = []string{
	"#News", "#Update", "#Info", "#Share", "#Follow",
	"#Like", "#Comment", "#Retweet", "#Social", "#Media",
}

var (
	baselineHashtagPool = slices.Concatenate(generalHashtags, techHashtags)
	trendingHashtagPool = slices.Concatenate(trendingHashtags, techHashtags)
)

var usernamePrefixes = []string{
	"tech", "news", "social", "digital", "cloud", "data",
	"user", "dev", "admin", "pro", "expert", "guru",
}

var usernameSuffixes = []string{
	"fan", "lover", "expert", "pro", "geek", "ninja",
	"master", "wizard", "guru", "ace", "star", "hero",
}

type city struct {
	name    string
	country string
	lat     float64
	lon     float64
}

var majorCities = []city{
	{"New York", "USA", 40.7128, -74.0060},
	{"Los Angeles", "USA", 34.0522, -118.2437},
	{"London", "UK", 51.5074, -0.1278},
	{"Tokyo", "Japan", 35.6762, 139.6503},
	{"Sydney", "Australia", -33.8688, 151.2093},
	{"Toronto", "Canada", 43.6532, -79.3832},
	{"Berlin", "Germany", 52.5200, 13.4050},
	{"Singapore", "Singapore", 1.3521, 103.8198},
	{"Mumbai", "India", 19.0760, 72.8777},
	{"São Paulo", "Brazil", -23.5505, -46.6333},
}

// Generator builds posts whose intensity follows the demo phase: baseline
// reactions in phase 1, breaking news in phase 2, viral content in phase 3,
// reactions again in the wind-down. Not safe for concurrent use; each
// publishing pipeline owns its own instance.
type Generator struct {
	rand  *rand.Rand
	clock clock.PassiveClock
}

func New(seed int64) *Generator {
	return &Generator{
		rand:  rand.New(rand.NewSource(seed)),
		clock: clock.RealClock{},
	}
}

// TypeDistribution returns the share of original posts, shares and replies
// for a phase. Viral phases shift weight from originals to amplification.
func TypeDistribution(phase int) (original, share, reply float64) {
	if phase <= 2 {
		return 0.7, 0.2, 0.1
	}
	return 0.4, 0.4, 0.2
}

// PickType draws a post type from the phase's distribution.
func (g *Generator) PickType(phase int) PostType {
	original, share, _ := TypeDistribution(phase)
	draw := g.rand.Float64()
	switch {
	case draw < original:
		return PostTypeOriginal
	case draw < original+share:
		return PostTypeShare
	default:
		return PostTypeReply
	}
}

// Generate builds one post for the given phase.
func (g *Generator) Generate(phase int, postType PostType) Post {
	userId := fmt.Sprintf("user_%d", g.intBetween(100000, 999999))
	return Post{
		Id:              uuid.NewString(),
		Timestamp:       g.clock.Now().UTC(),
		UserId:          userId,
		Username:        g.username(),
		Content:         g.content(phase, postType),
		Hashtags:        g.hashtags(phase),
		Mentions:        g.mentions(phase),
		Location:        g.location(),
		EngagementScore: g.engagementScore(phase),
		PostType:        postType,
	}
}

func (g *Generator) content(phase int, postType PostType) string {
	var templates []string
	switch phase {
	case 2:
		templates = breakingNewsTemplates
	case 3:
		templates = viralContentTemplates
	default:
		templates = reactionTemplates
	}
	content := choice(g.rand, templates)

	if g.rand.Float64() < 0.3 {
		content = choice(g.rand, contentVariations) + " " + content
	}
	if g.rand.Float64() < 0.2 {
		content = fmt.Sprintf("%s #%d", content, g.intBetween(1, 999))
	}
	if g.rand.Float64() < 0.15 {
		content = content + " " + choice(g.rand, contentEmojis)
	}

	switch postType {
	case PostTypeShare:
		content = "RT: " + content
	case PostTypeReply:
		content = "@" + choice(g.rand, replyTargets) + " " + content
	}
	return content
}

func (g *Generator) hashtags(phase int) []string {
	var count int
	var pool []string
	switch phase {
	case 2:
		count = g.intBetween(2, 4)
		pool = trendingHashtagPool
	case 3:
		count = g.intBetween(3, 6)
		pool = trendingHashtagPool
	default:
		count = g.intBetween(1, 2)
		pool = baselineHashtagPool
	}
	return g.sample(pool, count)
}

func (g *Generator) mentions(phase int) []string {
	var count int
	if phase <= 2 {
		count = g.intBetween(0, 1)
	} else {
		count = g.intBetween(1, 3)
	}
	mentions := make([]string, 0, count)
	for i := 0; i < count; i++ {
		mentions = append(mentions, "@"+g.username())
	}
	return mentions
}

// location places 70% of posts near a major city, with a little coordinate
// jitter so posts from one city do not collapse onto one point.
func (g *Generator) location() *GeoLocation {
	if g.rand.Float64() > 0.7 {
		return nil
	}
	c := choice(g.rand, majorCities)
	return &GeoLocation{
		Latitude:  c.lat + g.floatBetween(-0.1, 0.1),
		Longitude: c.lon + g.floatBetween(-0.1, 0.1),
		City:      c.name,
		Country:   c.country,
	}
}

func (g *Generator) engagementScore(phase int) float64 {
	var score float64
	switch phase {
	case 1:
		score = g.floatBetween(0.1, 2.0)
	case 2:
		score = g.floatBetween(2.0, 8.0)
	case 3:
		score = g.floatBetween(8.0, 20.0)
	default:
		score = g.floatBetween(1.0, 5.0)
	}
	return math.Round(score*100) / 100
}

func (g *Generator) username() string {
	if g.rand.Float64() < 0.3 {
		return fmt.Sprintf("user%d", g.intBetween(1000, 9999))
	}
	prefix := choice(g.rand, usernamePrefixes)
	suffix := choice(g.rand, usernameSuffixes)
	return fmt.Sprintf("%s%s%d", prefix, suffix, g.intBetween(10, 999))
}

// sample draws n distinct entries from pool.
func (g *Generator) sample(pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]string, 0, n)
	for _, i := range g.rand.Perm(len(pool))[:n] {
		out = append(out, pool[i])
	}
	return out
}

// intBetween returns a draw from [low, high], both inclusive.
func (g *Generator) intBetween(low, high int) int {
	return low + g.rand.Intn(high-low+1)
}

func (g *Generator) floatBetween(low, high float64) float64 {
	return low + g.rand.Float64()*(high-low)
}

func choice[T any](r *rand.Rand, pool []T) T {
	return pool[r.Intn(len(pool))]
}

// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package retrieval

import "context"

// FixtureFetcher is a canned Fetcher for tests and local runs without a
// real Reddit API credential, grounded on
// original_source/tests/mocks/reddit_api_mock.py's MOCK_POSTS fixture.
type FixtureFetcher struct {
	Posts []Post
}

func (f *FixtureFetcher) FetchPosts(_ context.Context, topic, subreddit string, limit int) ([]Post, error) {
	var matched []Post
	for _, p := range f.Posts {
		if p.Subreddit != subreddit {
			continue
		}
		matched = append(matched, p)
		if len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

// FuncFetcher adapts a plain function to Fetcher, for table-driven tests.
type FuncFetcher func(ctx context.Context, topic, subreddit string, limit int) ([]Post, error)

func (f FuncFetcher) FetchPosts(ctx context.Context, topic, subreddit string, limit int) ([]Post, error) {
	return f(ctx, topic, subreddit, limit)
}
